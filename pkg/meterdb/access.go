package meterdb

func InsertReading(reading *MeterDbReading) error {
	db, err := GetDB()
	if err != nil {
		return err
	}

	_, err = db.Exec(
		"INSERT INTO readings (timestamp, name, obis, value, unit) "+
			"VALUES (?, ?, ?, ?, ?)",
		reading.Timestamp,
		reading.Name,
		reading.Obis,
		reading.Value,
		reading.Unit,
	)
	return err
}

// LatestReading returns the most recent reading stored for name, nil if none.
func LatestReading(name string) (*MeterDbReading, error) {
	db, err := GetDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		"SELECT timestamp, name, obis, value, unit FROM readings "+
			"WHERE name = ? ORDER BY timestamp DESC, id DESC LIMIT 1",
		name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var r MeterDbReading
	if err := rows.Scan(&r.Timestamp, &r.Name, &r.Obis, &r.Value, &r.Unit); err != nil {
		return nil, err
	}
	return &r, nil
}

func CountReadings() (int, error) {
	db, err := GetDB()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&n)
	return n, err
}
