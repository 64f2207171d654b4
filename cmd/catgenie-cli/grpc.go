package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

func dial() (context.Context, context.CancelFunc, *grpc.ClientConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := grpcurl.BlockingDial(ctx, "tcp", resolveGRPCAddr(), insecure.NewCredentials())
	if err != nil {
		cancel()
		fatal("dial", err)
	}
	return ctx, cancel, conn
}

func healthCmd(args []string) {
	ctx, cancel, conn := dial()
	defer cancel()
	defer conn.Close()

	service := ""
	if len(args) > 0 {
		service = args[0]
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		fatal("health", err)
	}
	label := service
	if label == "" {
		label = "catgenie"
	}
	fmt.Printf("%s\t%s\n", label, resp.GetStatus())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		os.Exit(1)
	}
}

func servicesCmd() {
	ctx, cancel, conn := dial()
	defer cancel()
	defer conn.Close()

	services, err := grpcurl.ListServices(reflectionSource(ctx, conn))
	if err != nil {
		fatal("list services", err)
	}
	for _, service := range services {
		fmt.Println(service)
	}
}

// describeCmd prints the file descriptor that declares symbol as JSON.
func describeCmd(args []string) {
	if len(args) < 1 {
		fatal("describe", fmt.Errorf("missing symbol"))
	}
	ctx, cancel, conn := dial()
	defer cancel()
	defer conn.Close()

	dsc, err := reflectionSource(ctx, conn).FindSymbol(args[0])
	if err != nil {
		fatal("find symbol", err)
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(dsc.GetFile().AsFileDescriptorProto())
	if err != nil {
		fatal("format descriptor", err)
	}
	fmt.Println(string(data))
}

func reflectionSource(ctx context.Context, conn *grpc.ClientConn) grpcurl.DescriptorSource {
	client := grpcreflect.NewClientAuto(ctx, conn)
	return grpcurl.DescriptorSourceFromServer(ctx, client)
}
