package metadata

// GetTextValue looks up a (namespace, key) -> value configuration entry.
func (sess *Session) GetTextValue(namespace, key string) (string, error) {
	var tv TextValue
	err := sess.tx.First(&tv, "namespace = ? AND key = ?", namespace, key).Error
	if err != nil {
		if Demand(err, nil) == ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return tv.Value, nil
}

// SetTextValue upserts a (namespace, key) -> value entry.
func (sess *Session) SetTextValue(namespace, key, value string) error {
	return sess.UpsertOnConflict(&TextValue{Namespace: namespace, Key: key, Value: value}, []string{"namespace", "key"})
}
