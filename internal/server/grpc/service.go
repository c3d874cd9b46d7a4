package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully qualified classifier service name.
	ServiceName = "leafsight.v1.Classifier"

	// ClassifyMethod is the full method name of Classify.
	ClassifyMethod = "/" + ServiceName + "/Classify"

	// TopKMetadata is the request metadata key that overrides the table size.
	TopKMetadata = "x-top-k"
)

// ClassifierServer is the server API of leafsight.v1.Classifier.
//
// The service uses well-known types so no generated code is needed: the
// request is the raw image as BytesValue and the response is the prediction
// as a Struct with the same fields as the HTTP JSON body.
type ClassifierServer interface {
	Classify(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
}

func classifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).Classify(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ClassifyMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClassifierServer).Classify(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ClassifierServiceDesc describes leafsight.v1.Classifier for grpc.Server.RegisterService.
var ClassifierServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Classify",
			Handler:    classifyHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "leafsight/v1/classifier.proto",
}

// RegisterClassifierServer registers srv on s.
func RegisterClassifierServer(s grpc.ServiceRegistrar, srv ClassifierServer) {
	s.RegisterService(&ClassifierServiceDesc, srv)
}
