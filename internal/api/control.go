package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the control service.
const ServiceName = "rapt.v1.Control"

// Unary method names.
const (
	MethodStatus         = "Status"
	MethodLogin          = "Login"
	MethodVerify         = "Verify"
	MethodLogout         = "Logout"
	MethodProfile        = "Profile"
	MethodSyncContacts   = "SyncContacts"
	MethodSearchContacts = "SearchContacts"
	MethodDeleteContact  = "DeleteContact"
	MethodSyncChats      = "SyncChats"
	MethodListRooms      = "ListRooms"
	MethodCreateRoom     = "CreateRoom"
	MethodOpenRoom       = "OpenRoom"
	MethodCloseRoom      = "CloseRoom"
	MethodListMessages   = "ListMessages"
	MethodSendText       = "SendText"
	MethodMarkRead       = "MarkRead"
	MethodSignal         = "Signal"
	MethodWatchEvents    = "WatchEvents"
)

// ControlServer is the daemon side of the control service. Requests and
// responses are free-form structs; field names are documented on each
// Service method.
type ControlServer interface {
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Verify(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Profile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SyncContacts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchContacts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteContact(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SyncChats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRooms(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendText(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkRead(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Signal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, grpc.ServerStream) error
}

type unaryCall func(ControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServer).WatchEvents(in, stream)
}

// ServiceDesc describes the control service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodStatus, ControlServer.Status),
		unary(MethodLogin, ControlServer.Login),
		unary(MethodVerify, ControlServer.Verify),
		unary(MethodLogout, ControlServer.Logout),
		unary(MethodProfile, ControlServer.Profile),
		unary(MethodSyncContacts, ControlServer.SyncContacts),
		unary(MethodSearchContacts, ControlServer.SearchContacts),
		unary(MethodDeleteContact, ControlServer.DeleteContact),
		unary(MethodSyncChats, ControlServer.SyncChats),
		unary(MethodListRooms, ControlServer.ListRooms),
		unary(MethodCreateRoom, ControlServer.CreateRoom),
		unary(MethodOpenRoom, ControlServer.OpenRoom),
		unary(MethodCloseRoom, ControlServer.CloseRoom),
		unary(MethodListMessages, ControlServer.ListMessages),
		unary(MethodSendText, ControlServer.SendText),
		unary(MethodMarkRead, ControlServer.MarkRead),
		unary(MethodSignal, ControlServer.Signal),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatchEvents,
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "rapt/v1/control.proto",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// FullMethod returns the gRPC path of a control method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}
