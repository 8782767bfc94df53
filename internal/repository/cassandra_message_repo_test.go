package repository

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
)

func TestParseConsistency(t *testing.T) {
	cases := map[string]gocql.Consistency{
		"one":          gocql.One,
		"QUORUM":       gocql.Quorum,
		"all":          gocql.All,
		"any":          gocql.Any,
		"local_one":    gocql.LocalOne,
		"EACH_QUORUM":  gocql.EachQuorum,
		"LOCAL_QUORUM": gocql.LocalQuorum,
		"":             gocql.LocalQuorum,
		"bogus":        gocql.LocalQuorum,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseConsistency(in), in)
	}
}

func TestTimeUUID_KeepsCreatedAtOrder(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Microsecond)

	var prev gocql.UUID
	for i := 0; i < 5; i++ {
		createdAt := base.Add(time.Duration(i) * time.Microsecond)
		id := gocql.UUIDFromTime(createdAt)

		assert.True(t, id.Time().Equal(createdAt), "id time %s, want %s", id.Time(), createdAt)
		if i > 0 {
			assert.Greater(t, id.Timestamp(), prev.Timestamp())
		}
		prev = id
	}
}
