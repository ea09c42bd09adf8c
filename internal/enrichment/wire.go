package enrichment

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ak125/contentgate/internal/content"
)

// The enrichment service speaks plain google.protobuf.Struct messages so
// both sides can evolve their material shape without shared codegen.
const (
	ServiceName = "contentgate.enrichment.v1.Enrichment"
	FetchMethod = "/" + ServiceName + "/Fetch"
)

// #region request
// Request is the decoded Fetch request.
type Request struct {
	ItemID string        `json:"item_id"`
	Role   content.Role  `json:"role"`
	Scope  content.Scope `json:"scope"`
}

func encodeRequest(r Request) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"item_id": r.ItemID,
		"role":    string(r.Role),
		"scope":   string(r.Scope),
	})
}

// DecodeRequest reads a Fetch request struct.
func DecodeRequest(s *structpb.Struct) Request {
	f := s.GetFields()
	return Request{
		ItemID: f["item_id"].GetStringValue(),
		Role:   content.Role(f["role"].GetStringValue()),
		Scope:  content.Scope(f["scope"].GetStringValue()),
	}
}

// #endregion request

// #region material
// EncodeMaterial converts material into its wire struct.
func EncodeMaterial(m content.Material) (*structpb.Struct, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal material: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("material to struct: %w", err)
	}
	return out, nil
}

func decodeMaterial(s *structpb.Struct) (content.Material, error) {
	data, err := protojson.Marshal(s)
	if err != nil {
		return content.Material{}, fmt.Errorf("struct to json: %w", err)
	}
	var m content.Material
	if err := json.Unmarshal(data, &m); err != nil {
		return content.Material{}, fmt.Errorf("decode material: %w", err)
	}
	return m, nil
}

// #endregion material

// #region server
// Server is the server side of the enrichment service.
type Server interface {
	Fetch(ctx context.Context, req Request) (content.Material, error)
}

// ServerFunc adapts a function to Server.
type ServerFunc func(ctx context.Context, req Request) (content.Material, error)

func (f ServerFunc) Fetch(ctx context.Context, req Request) (content.Material, error) {
	return f(ctx, req)
}

func fetchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req interface{}) (interface{}, error) {
		m, err := srv.(Server).Fetch(ctx, DecodeRequest(req.(*structpb.Struct)))
		if err != nil {
			return nil, err
		}
		return EncodeMaterial(m)
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FetchMethod}
	return interceptor(ctx, in, info, handle)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fetch", Handler: fetchHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterServer attaches srv to a gRPC server.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

// #endregion server
