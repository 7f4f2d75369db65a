package metadata

import "github.com/apache/atr/internal/atrerr"

// ProjectFilter is the typed query builder for Project.
type ProjectFilter struct {
	Name          *string
	CommitteeName *string
	Status        *ProjectStatus
}

// EagerLoad names relations to populate on a query, per §4.A "eager-loading
// hints expressed as which relations to populate".
type EagerLoad struct {
	Policy bool
}

func (sess *Session) FindProjects(f ProjectFilter, eager EagerLoad) ([]Project, error) {
	q := sess.tx.Model(&Project{})
	if eager.Policy {
		q = q.Preload("ReleasePolicy")
	}
	if f.Name != nil {
		q = q.Where("name = ?", *f.Name)
	}
	if f.CommitteeName != nil {
		q = q.Where("committee_name = ?", *f.CommitteeName)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	var out []Project
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (sess *Session) GetProject(name string, eager EagerLoad) (*Project, error) {
	q := sess.tx.Model(&Project{})
	if eager.Policy {
		q = q.Preload("ReleasePolicy")
	}
	var p Project
	if err := q.First(&p, "name = ?", name).Error; err != nil {
		return nil, Demand(err, atrerr.NotFoundf("project %q not found", name))
	}
	return &p, nil
}

func (sess *Session) CreateProject(p *Project) error {
	return sess.tx.Create(p).Error
}

// EffectivePolicy returns the project's own policy, or its super-project's
// policy when the project has none and declares a super-project, per §3
// "ReleasePolicy (optional, inherited from super-project)".
func (sess *Session) EffectivePolicy(p *Project) (*ReleasePolicy, error) {
	if p.ReleasePolicy != nil {
		return p.ReleasePolicy, nil
	}
	if p.SuperProject == nil {
		return nil, nil
	}
	super, err := sess.GetProject(*p.SuperProject, EagerLoad{Policy: true})
	if err != nil {
		return nil, err
	}
	return super.ReleasePolicy, nil
}

func (sess *Session) UpsertReleasePolicy(rp *ReleasePolicy) error {
	return sess.UpsertOnConflict(rp, []string{"project_name"})
}
