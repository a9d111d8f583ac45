// Package grpcclient talks to the face embedding model service.
//
// The service exposes a single unary method that takes an encoded image in a
// google.protobuf.BytesValue and answers with a google.protobuf.Struct:
//
//	{"faces": [{"box": {"x": 0, "y": 0, "width": 0, "height": 0},
//	            "score": 0.99, "embedding": [0.1, ...]}]}
package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/face-verify/internal/descriptor"
	"github.com/example/face-verify/internal/extractor"
	"github.com/example/face-verify/internal/imageprocessor"
	"github.com/example/face-verify/internal/logging"
)

// ExtractFacesMethod is the full gRPC method name of the embedding service.
const ExtractFacesMethod = "/faceembed.v1.Embedder/ExtractFaces"

// DialExtractor returns a client for the embedding service at addr. The
// connection is established lazily on the first call.
func DialExtractor(addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_extractor", "", err)
		logger.Error("failed to create embedding service client", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewClient(conn, logger), conn, nil
}

// Client implements extractor.Extractor over gRPC.
type Client struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface, logger *zap.Logger) *Client {
	return &Client{conn: conn, logger: logger.Named("grpc_extractor")}
}

// ExtractFaces sends img as PNG and returns every face the model found.
func (c *Client) ExtractFaces(ctx context.Context, img image.Image) ([]extractor.Face, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	encoded, err := imageprocessor.EncodePNG(img)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.encode_image", "", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, ExtractFacesMethod, wrapperspb.Bytes(encoded), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.extract_faces", "", err)
		c.logger.Error("embedding service call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	faces, err := parseFaces(resp)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.parse_faces", "", err)
	}
	return faces, nil
}

// ExtractTopFace returns the most prominent face, or nil if there is none.
func (c *Client) ExtractTopFace(ctx context.Context, img image.Image) (*extractor.Face, error) {
	faces, err := c.ExtractFaces(ctx, img)
	if err != nil {
		return nil, err
	}
	if len(faces) > 1 {
		c.logger.Debug("multiple faces detected, using the top-ranked one", zap.Int("faces", len(faces)))
	}
	return extractor.SelectTopFace(faces), nil
}

func parseFaces(resp *structpb.Struct) ([]extractor.Face, error) {
	list := resp.GetFields()["faces"].GetListValue()
	if list == nil {
		return nil, nil
	}

	faces := make([]extractor.Face, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		obj := v.GetStructValue()
		if obj == nil {
			return nil, fmt.Errorf("face %d is not an object", i)
		}
		fields := obj.GetFields()

		values := fields["embedding"].GetListValue().GetValues()
		desc := make(descriptor.Descriptor, len(values))
		for j, n := range values {
			num, ok := n.GetKind().(*structpb.Value_NumberValue)
			if !ok {
				return nil, fmt.Errorf("face %d embedding[%d] is not a number", i, j)
			}
			desc[j] = float32(num.NumberValue)
		}

		box := fields["box"].GetStructValue().GetFields()
		faces = append(faces, extractor.Face{
			Box: extractor.BoundingBox{
				X:      box["x"].GetNumberValue(),
				Y:      box["y"].GetNumberValue(),
				Width:  box["width"].GetNumberValue(),
				Height: box["height"].GetNumberValue(),
			},
			Score:      fields["score"].GetNumberValue(),
			Descriptor: desc,
		})
	}
	return faces, nil
}
