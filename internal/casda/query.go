package casda

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/transport"
	"github.com/joseph-ayodele/casda-stager/internal/votable"
)

// Region is a search area around an FK5 position. All values are in degrees.
// Either Radius, or both Width and Height, must be positive.
type Region struct {
	RA     float64
	Dec    float64
	Radius float64
	Width  float64
	Height float64
}

// RegionPayload builds the SIA2 request parameters for r without sending anything.
func RegionPayload(r Region) (url.Values, error) {
	var pos string
	switch {
	case r.Radius > 0:
		pos = fmt.Sprintf("CIRCLE %s %s %s", ff(r.RA), ff(r.Dec), ff(r.Radius))
	case r.Width > 0 && r.Height > 0:
		top := r.Dec - r.Height/2
		bottom := r.Dec + r.Height/2
		left := r.RA - r.Width/2
		right := r.RA + r.Width/2
		pos = fmt.Sprintf("RANGE %s %s %s %s", ff(left), ff(right), ff(top), ff(bottom))
	default:
		return nil, fmt.Errorf("%w: either radius or both height and width must be supplied", common.ErrInvalidInput)
	}
	return url.Values{"POS": {pos}}, nil
}

// QueryRegion runs a cached SIA2 query and returns the observation table.
func (c *Client) QueryRegion(ctx context.Context, r Region) (*votable.Table, error) {
	params, err := RegionPayload(r)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: http.MethodGet,
		URL:    c.cfg.QueryURL,
		Params: params,
		Cache:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("query region: %w", err)
	}
	doc, err := votable.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, err
	}
	table, err := doc.ResultsTable()
	if err != nil {
		return nil, err
	}
	c.logger.Info("casda.query.ok", "pos", params.Get("POS"), "rows", table.Len(), "elapsed_ms", since(start))
	return table, nil
}

// FilterOutUnreleased keeps the rows whose obs_release_date is set and earlier than now.
func FilterOutUnreleased(t *votable.Table, now time.Time) (*votable.Table, error) {
	col, ok := t.Column(constants.ColumnObsReleaseDate)
	if !ok {
		return nil, fmt.Errorf("%w: table has no %s column", common.ErrInvalidInput, constants.ColumnObsReleaseDate)
	}
	cutoff := now.UTC().Format(constants.ReleaseDateLayout)

	out := &votable.Table{Name: t.Name, Fields: append([]votable.Field(nil), t.Fields...)}
	for _, row := range t.Rows {
		released := row[col]
		if released != "" && released < cutoff {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// AccessURLs returns the access_url column of an observation table.
func AccessURLs(t *votable.Table) ([]string, error) {
	col, ok := t.Column(constants.ColumnAccessURL)
	if !ok {
		return nil, fmt.Errorf("%w: table has no %s column", common.ErrInvalidInput, constants.ColumnAccessURL)
	}
	out := make([]string, 0, t.Len())
	for _, row := range t.Rows {
		out = append(out, row[col])
	}
	return out, nil
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
