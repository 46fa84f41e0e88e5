package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"www.velocidex.com/golang/fleetstore/collections"
	"www.velocidex.com/golang/fleetstore/json"
	"www.velocidex.com/golang/fleetstore/paths"
)

var (
	dump_command = app.Command(
		"dump", "Dump collection records to stdout as JSONL.")

	dump_command_collection_id = dump_command.Arg(
		"collection_id", "The collection to dump.").Required().String()

	dump_command_offset = dump_command.Flag(
		"offset", "Start at this ordinal.").Default("0").Int64()

	dump_command_limit = dump_command.Flag(
		"limit", "Stop after this many records (0 means all).").
		Default("0").Int64()

	dump_command_raw = dump_command.Flag(
		"raw", "Dump the stored bytes without decoding envelopes.").Bool()

	dump_command_keys = dump_command.Flag(
		"keys", "Annotate each row with its record key "+
			"as _ts and _suffix fields.").Bool()
)

func doDump() error {
	config_obj, err := makeDefaultConfigLoader().LoadAndValidate()
	if err != nil {
		return fmt.Errorf("Unable to load config file: %w", err)
	}

	collection_id := *dump_command_collection_id
	err = paths.ValidateCollectionId(collection_id)
	if err != nil {
		return err
	}

	collection := collections.NewGeneralCollection(
		config_obj, collection_id).IndexedCollection
	if *dump_command_raw {
		collection = collections.NewIndexedCollection(
			config_obj, collection_id, collections.BytesCodec{})
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	// Cancelling the context stops the generator, so once we hit
	// the limit we just drain the channel.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	count := int64(0)
	var dump_err error
	for item := range collection.GenerateItems(ctx, *dump_command_offset) {
		if dump_err != nil ||
			(*dump_command_limit > 0 && count >= *dump_command_limit) {
			cancel()
			continue
		}

		var serialized []byte
		if *dump_command_raw {
			serialized, _ = item.Value.([]byte)
		} else {
			serialized, dump_err = json.Marshal(item.Value)
			if dump_err != nil {
				cancel()
				continue
			}
		}
		line := append(serialized, '\n')

		if *dump_command_keys && !*dump_command_raw {
			line = json.AppendJsonlItem(line, "_ts", item.Key.Timestamp)
			line = json.AppendJsonlItem(line, "_suffix", item.Key.Suffix)
		}

		_, dump_err = out.Write(line)
		if dump_err != nil {
			cancel()
			continue
		}
		count++
	}

	return dump_err
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case dump_command.FullCommand():
			FatalIfError(dump_command, doDump)

		default:
			return false
		}
		return true
	})
}
