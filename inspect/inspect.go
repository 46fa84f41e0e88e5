// Inspect collections in the data store and summarize their layout.
package inspect

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"www.velocidex.com/golang/fleetstore/collections"
	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
	"www.velocidex.com/golang/fleetstore/datastore"
	"www.velocidex.com/golang/fleetstore/paths"
)

// A point in time summary of one collection.
type Report struct {
	CollectionId string

	// Records and payload bytes actually present in the store.
	Records int64
	Bytes   int64

	// Key range of the stored records.
	First datastore.Key
	Last  datastore.Key

	// Length as ordinal addressing sees it. This disagrees with
	// Records when a record was written below the already indexed
	// range - index entries are never rewritten so ordinal
	// numbering drifts until the collection is deleted.
	Length int64

	IndexEntries []*datastore.IndexEntry
}

// Collect gathers the report for a collection. Payloads stay opaque
// bytes so collections of any kind can be examined.
func Collect(
	ctx context.Context,
	config_obj *config_proto.Config,
	collection_id string) (*Report, error) {

	err := paths.ValidateCollectionId(collection_id)
	if err != nil {
		return nil, err
	}

	db, err := datastore.GetDB(config_obj)
	if err != nil {
		return nil, err
	}

	report := &Report{CollectionId: collection_id}
	err = db.ScanCollection(ctx, config_obj, collection_id,
		datastore.Key{}, 0, func(record *datastore.Record) error {
			if report.Records == 0 {
				report.First = record.Key
			}
			report.Last = record.Key
			report.Records++
			report.Bytes += int64(len(record.Data))
			return nil
		})
	if err != nil {
		return nil, err
	}

	collection := collections.NewIndexedCollection(
		config_obj, collection_id, collections.BytesCodec{})
	report.Length, err = collection.Length(ctx)
	if err != nil {
		return nil, err
	}

	report.IndexEntries, err = datastore.ReadIndexEntries(
		config_obj, db, collection_id)
	if err != nil {
		return nil, err
	}

	return report, nil
}

// Inspect writes a human readable summary of the collection to out.
func Inspect(
	ctx context.Context,
	config_obj *config_proto.Config,
	out io.Writer,
	collection_id string) error {

	report, err := Collect(ctx, config_obj, collection_id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Collection %v\n", report.CollectionId)
	if report.Records == 0 {
		fmt.Fprintf(out, "  empty\n")
		return nil
	}

	fmt.Fprintf(out, "  records: %v (%v)\n",
		humanize.Comma(report.Records),
		humanize.Bytes(uint64(report.Bytes)))
	fmt.Fprintf(out, "  first:   %v\n", describeKey(report.First))
	fmt.Fprintf(out, "  last:    %v\n", describeKey(report.Last))
	fmt.Fprintf(out, "  length:  %v\n", humanize.Comma(report.Length))

	if report.Length != report.Records {
		fmt.Fprintf(out, "  NOTE: length and record count disagree. "+
			"A record was written below the indexed range and "+
			"ordinal numbering has drifted.\n")
	}

	if len(report.IndexEntries) == 0 {
		fmt.Fprintf(out, "  no index entries\n")
		return nil
	}

	fmt.Fprintf(out, "\n")
	renderIndex(out, report.IndexEntries)
	return nil
}

func renderIndex(out io.Writer, entries []*datastore.IndexEntry) {
	table := tablewriter.NewWriter(out)
	defer table.Render()

	table.SetHeader([]string{"Ordinal", "Timestamp", "Suffix", "Age"})
	table.SetCaption(true, fmt.Sprintf("%v index entries", len(entries)))
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for _, entry := range entries {
		table.Append([]string{
			humanize.Comma(entry.Ordinal),
			keyTime(entry.Key).Format(time.RFC3339),
			fmt.Sprintf("%d", entry.Key.Suffix),
			humanize.Time(keyTime(entry.Key)),
		})
	}
}

func describeKey(key datastore.Key) string {
	t := keyTime(key)
	return fmt.Sprintf("%v (%v)", t.Format(time.RFC3339), humanize.Time(t))
}

// Key timestamps are microseconds since the epoch.
func keyTime(key datastore.Key) time.Time {
	return time.Unix(0, key.Timestamp*1000).UTC()
}
