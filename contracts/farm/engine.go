package farm

// catchUp loads the farm, applies all due sessions at now and writes the
// record back on every path.
func catchUp(tx *txn, r *Receipt, farmID uint64, now uint64) (*Farm, error) {
	f, err := tx.loadFarm(farmID)
	if err != nil {
		return nil, err
	}
	if advance(f, now) {
		r.Events = append(r.Events, Event{
			Method:    EventFarmEnded,
			FarmID:    farmID,
			Timestamp: now,
		})
	}
	if err := tx.saveFarm(farmID, f); err != nil {
		return nil, err
	}
	return f, nil
}
