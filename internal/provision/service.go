package provision

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName     = "uplink.Provisioner"
	provisionMethod = "/" + serviceName + "/Provision"
	statsMethod     = "/" + serviceName + "/Stats"
)

// Request asks the host to open an upload endpoint for one target.
type Request struct {
	// Name is the scene directory name or the video file name.
	Name string `json:"name"`
	// Type is the resource kind as an integer.
	Type int `json:"type"`
}

// Response carries either the endpoint (URL and Token) or Message.
type Response struct {
	URL     string `json:"url,omitempty"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

type StatsRequest struct{}

type StatsResponse struct {
	Active      int     `json:"active"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	Timeouts    int     `json:"timeouts"`
	SuccessRate float64 `json:"success_rate"`
	P95Millis   float64 `json:"p95_ms"`
}

// ProvisionerServer is implemented by the host side of the handshake.
type ProvisionerServer interface {
	Provision(context.Context, *Request) (*Response, error)
	Stats(context.Context, *StatsRequest) (*StatsResponse, error)
}

// RegisterProvisionerServer attaches srv to a gRPC server.
func RegisterProvisionerServer(s grpc.ServiceRegistrar, srv ProvisionerServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ProvisionerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Provision", Handler: provisionHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "uplink/provision",
}

func provisionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProvisionerServer).Provision(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: provisionMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ProvisionerServer).Provision(ctx, req.(*Request))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProvisionerServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ProvisionerServer).Stats(ctx, req.(*StatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}
