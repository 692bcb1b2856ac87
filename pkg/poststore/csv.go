package poststore

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/posttree"
	"github.com/abustany/monthly-board/pkg/types"
)

// LoadFromCSV loads top-level posts from a CSV file into their partitions, and
// returns the number of posts inserted. Records whose id already exists in
// their partition are skipped and not counted.
//
// The CSV records must have 5 columns: id, name, message, date (in RFC3339
// format), imageData (may be empty).
func LoadFromCSV(ctx context.Context, store *Store, data io.Reader, hasHeader bool) (uint, error) {
	reader := csv.NewReader(data)

	// Id, name, message, date, imageData
	reader.FieldsPerRecord = 5
	reader.ReuseRecord = true

	counter := uint(0)
	line := 0

	for {
		record, err := reader.Read()

		if err == io.EOF {
			break
		}

		if err != nil {
			return counter, errors.Wrap(err, "Error while decoding CSV file")
		}

		line++

		if hasHeader && line == 1 {
			continue
		}

		id, err := strconv.ParseFloat(record[0], 64)

		if err != nil {
			return counter, errors.Wrapf(err, "Error while parsing id of record %d", line)
		}

		date, err := time.Parse(time.RFC3339, record[3])

		if err != nil {
			return counter, errors.Wrapf(err, "Error while parsing date of record %d", line)
		}

		post := types.Post{
			ID:      id,
			Name:    record[1],
			Message: record[2],
			Date:    date,
			Replies: []types.Post{},
		}

		if record[4] != "" {
			image := record[4]
			post.ImageData = &image
		}

		existing, err := store.ReadPartition(ctx, store.MonthKey(date))

		if err != nil && !IsRecovered(err) {
			return counter, errors.Wrapf(err, "Error while reading partition for record %d", line)
		}

		if posttree.Contains(existing, id) {
			continue
		}

		if err := store.InsertTopLevel(ctx, post); err != nil && !IsRecovered(err) {
			return counter, errors.Wrapf(err, "Error while inserting post for record %d", line)
		}

		counter++
	}

	return counter, nil
}
