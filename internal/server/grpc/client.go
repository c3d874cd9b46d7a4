package grpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ekisa-team/leafsight/internal/mapsafe"
)

// Result is the decoded Classify response.
type Result struct {
	ID         string
	Label      string
	Name       string
	Percent    string
	Verdict    string
	Ranked     []RankedResult
	Confidence float64
}

// RankedResult is one row of Result.Ranked.
type RankedResult struct {
	Label      string
	Name       string
	Confidence float64
}

// Client calls leafsight.v1.Classifier.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a client on conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Classify sends an image and decodes the prediction. A zero topK uses the server default.
func (c *Client) Classify(ctx context.Context, image []byte, topK int) (*Result, error) {
	if topK != 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, TopKMetadata, strconv.Itoa(topK))
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ClassifyMethod, wrapperspb.Bytes(image), out); err != nil {
		return nil, err
	}

	m := out.AsMap()
	res := &Result{
		ID:         mapsafe.Get(m, "id", ""),
		Label:      mapsafe.Get(m, "label", ""),
		Name:       mapsafe.Get(m, "name", ""),
		Percent:    mapsafe.Get(m, "percent", ""),
		Verdict:    mapsafe.Get(m, "verdict", ""),
		Confidence: mapsafe.Get(m, "confidence", 0.0),
	}
	for _, row := range mapsafe.Get[[]any](m, "ranked", nil) {
		r, ok := row.(map[string]any)
		if !ok {
			continue
		}
		res.Ranked = append(res.Ranked, RankedResult{
			Label:      mapsafe.Get(r, "label", ""),
			Name:       mapsafe.Get(r, "name", ""),
			Confidence: mapsafe.Get(r, "confidence", 0.0),
		})
	}
	return res, nil
}
