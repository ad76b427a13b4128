// Command slimectl queries and controls a running slime monitor over gRPC.
//
//	slimectl [flags] status
//	slimectl [flags] sample
//	slimectl [flags] history [limit]
//	slimectl [flags] environment
//	slimectl [flags] light exposure <on|off|toggle> [seconds]
//	slimectl [flags] events [limit]
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chootka/sLLM/pkg/pb"
	"github.com/chootka/sLLM/pkg/tlsconfig"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := pflag.StringP("addr", "a", envOr("MONITOR_ADDR", "localhost:50051"), "monitor gRPC address")
	timeout := pflag.DurationP("timeout", "t", 5*time.Second, "request timeout")
	var files tlsconfig.Files
	pflag.StringVar(&files.Cert, "cert", os.Getenv("TLS_CERT"), "client certificate for mTLS")
	pflag.StringVar(&files.Key, "key", os.Getenv("TLS_KEY"), "client key for mTLS")
	pflag.StringVar(&files.CA, "ca", os.Getenv("TLS_CA"), "CA certificate for mTLS")
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: slimectl [flags] status|sample|history|environment|light|events")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	creds := insecure.NewCredentials()
	if files.Enabled() {
		tlsCfg, err := files.Client()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load TLS config")
		}
		creds = credentials.NewTLS(tlsCfg)
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("failed to dial")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := call(ctx, pb.NewMonitorServiceClient(conn), args)
	if err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("request failed")
	}

	out, err := protojson.MarshalOptions{Multiline: true}.Marshal(resp)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode response")
	}
	fmt.Println(string(out))
}

func call(ctx context.Context, client pb.MonitorServiceClient, args []string) (proto.Message, error) {
	switch args[0] {
	case "status":
		return client.GetStatus(ctx, &emptypb.Empty{})
	case "sample":
		return client.GetCurrentSample(ctx, &emptypb.Empty{})
	case "environment":
		return client.GetEnvironment(ctx, &emptypb.Empty{})
	case "history", "events":
		req := map[string]interface{}{}
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fmt.Errorf("limit: %w", err)
			}
			req["limit"] = n
		}
		s, err := structpb.NewStruct(req)
		if err != nil {
			return nil, err
		}
		if args[0] == "history" {
			return client.GetHistory(ctx, s)
		}
		return client.ListEvents(ctx, s)
	case "light":
		if len(args) < 3 {
			return nil, fmt.Errorf("usage: light exposure <on|off|toggle> [seconds]")
		}
		req := map[string]interface{}{"light": args[1], "state": args[2]}
		if len(args) > 3 {
			d, err := strconv.ParseFloat(args[3], 64)
			if err != nil {
				return nil, fmt.Errorf("duration: %w", err)
			}
			req["duration"] = d
		}
		s, err := structpb.NewStruct(req)
		if err != nil {
			return nil, err
		}
		return client.SetLight(ctx, s)
	}
	return nil, fmt.Errorf("unknown command %q", args[0])
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
