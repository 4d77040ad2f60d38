package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/livesync/core/query"
)

func TestBuildKey(t *testing.T) {
	t.Parallel()

	key, err := buildKey(" shipments ", "id, eta", []string{"status=eq.open", "carrier_id=in.(3,4)"}, "eta.desc,id", 20, 40)
	require.NoError(t, err)

	want := query.NewKey("shipments",
		query.Columns("id", "eta"),
		query.Where("carrier_id", query.OpIn, "(3,4)"),
		query.Where("status", query.OpEq, "open"),
		query.OrderBy("eta", true),
		query.OrderBy("id", false),
		query.Limit(20),
		query.Offset(40),
	)
	assert.True(t, want.Equal(key), "got %s", key)
}

func TestBuildKey_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		table   string
		filters []string
		order   string
		wantErr error
	}{
		{name: "missing table", wantErr: errMissingTable},
		{name: "bad filter", table: "shipments", filters: []string{"status"}, wantErr: query.ErrInvalidFilter},
		{name: "bad order", table: "shipments", order: "eta.sideways"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := buildKey(tt.table, "*", tt.filters, tt.order, 0, 0)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPrinter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := &printer{out: &buf, now: func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) }}

	p.print(query.Entry{Status: query.StatusLoading})
	p.print(query.Entry{Status: query.StatusFresh, Rows: query.Rows{{"id": 7}}})
	p.print(query.Entry{Status: query.StatusError, Err: errors.New("boom")})

	assert.Equal(t, "15:04:05 loading rows=0\n"+
		"15:04:05 fresh   rows=1\n"+
		"[\n  {\n    \"id\": 7\n  }\n]\n"+
		"15:04:05 error   rows=0 error=boom\n", buf.String())
}
