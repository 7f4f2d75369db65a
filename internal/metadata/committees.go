package metadata

// CommitteeFilter is the typed query builder for Committee, exposing every
// filterable column as an optional predicate (§4.A "Query builder exposes
// one typed builder per entity").
type CommitteeFilter struct {
	Name    *string
	Podling *bool
}

func (sess *Session) FindCommittees(f CommitteeFilter) ([]Committee, error) {
	q := sess.tx.Model(&Committee{})
	if f.Name != nil {
		q = q.Where("name = ?", *f.Name)
	}
	if f.Podling != nil {
		q = q.Where("podling = ?", *f.Podling)
	}
	var out []Committee
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (sess *Session) GetCommittee(name string) (*Committee, error) {
	var c Committee
	err := sess.tx.First(&c, "name = ?", name).Error
	if err != nil {
		return nil, Demand(err, nil)
	}
	return &c, nil
}

func (sess *Session) UpsertCommittee(c *Committee) error {
	return sess.UpsertOnConflict(c, []string{"name"})
}
