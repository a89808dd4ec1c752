package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/entitystore/internal/server"
)

var (
	serverAddr string
	timeout    time.Duration
)

// call dials the server and runs fn with a deadline
func call(fn func(ctx context.Context, c *server.EntityServiceClient) (*structpb.Struct, error)) {
	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fatal("Error connecting", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := fn(ctx, server.NewEntityServiceClient(conn))
	if err != nil {
		fatal("Request failed", err)
	}
	out, err := json.MarshalIndent(resp.AsMap(), "", "  ")
	if err != nil {
		fatal("Error encoding response", err)
	}
	fmt.Println(string(out))
}

var getCmd = &cobra.Command{
	Use:   "get <class> <key>",
	Short: "Fetch an entity from a running server",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		req, err := structpb.NewStruct(map[string]interface{}{"class": args[0], "key": args[1]})
		if err != nil {
			fatal("Invalid request", err)
		}
		call(func(ctx context.Context, c *server.EntityServiceClient) (*structpb.Struct, error) {
			return c.Find(ctx, req)
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put <class> <json>",
	Short: "Persist an entity on a running server",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var entity map[string]interface{}
		if err := json.Unmarshal([]byte(args[1]), &entity); err != nil {
			fatal("Invalid entity JSON", err)
		}
		req, err := structpb.NewStruct(map[string]interface{}{"class": args[0], "entity": entity})
		if err != nil {
			fatal("Invalid request", err)
		}
		call(func(ctx context.Context, c *server.EntityServiceClient) (*structpb.Struct, error) {
			return c.Persist(ctx, req)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <class> <key>",
	Short: "Delete an entity on a running server",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		req, err := structpb.NewStruct(map[string]interface{}{"class": args[0], "key": args[1]})
		if err != nil {
			fatal("Invalid request", err)
		}
		call(func(ctx context.Context, c *server.EntityServiceClient) (*structpb.Struct, error) {
			return c.Delete(ctx, req)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{getCmd, putCmd, deleteCmd} {
		cmd.Flags().StringVar(&serverAddr, "addr", "localhost:7070", "Server address")
		cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
		rootCmd.AddCommand(cmd)
	}
}
