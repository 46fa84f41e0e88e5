// This file defines the schema of where various things go into the
// datastore.

package paths

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	errors "github.com/pkg/errors"
	"www.velocidex.com/golang/fleetstore/utils"
)

// Collection ids are absolute, slash separated and free of relative
// components. Within those rules their layout belongs to the path
// managers.
func ValidateCollectionId(collection_id string) error {
	if collection_id == "" {
		return errors.WithMessage(utils.InvalidArgumentError,
			"empty collection id")
	}

	if !strings.HasPrefix(collection_id, "/") {
		return errors.WithMessage(utils.InvalidArgumentError,
			fmt.Sprintf("collection id %q is not absolute",
				collection_id))
	}

	for _, component := range strings.Split(collection_id[1:], "/") {
		switch component {
		case "":
			return errors.WithMessage(utils.InvalidArgumentError,
				fmt.Sprintf("collection id %q has an empty component",
					collection_id))

		case ".", "..":
			return errors.WithMessage(utils.InvalidArgumentError,
				fmt.Sprintf("collection id %q has a relative component",
					collection_id))
		}
	}

	return nil
}

var day_name_regex = regexp.MustCompile(
	`^\d\d\d\d-\d\d-\d\d`)

// Stats collections are bucketed per day. Recover the start of a
// bucket's day from its name.
func DayNameToTimestamp(name string) int64 {
	matches := day_name_regex.FindAllString(name, -1)
	if len(matches) == 1 {
		time, err := time.Parse("2006-01-02 MST",
			matches[0]+" UTC")
		if err == nil {
			return time.Unix()
		}
	}
	return 0
}
