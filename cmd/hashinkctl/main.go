package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ppalomo/hashink/sdk/go/hashink"
)

const usage = `usage:
  hashinkctl request create --requester <acct> --recipient <acct> [--recipient ...] --amount <n> [--window-seconds <n>]
  hashinkctl request get --id <n>
  hashinkctl request cancel --id <n> --caller <acct>
  hashinkctl request finalize --id <n> --caller <acct> --content-ref <ref> --metadata-ref <ref>
  hashinkctl balance --account <acct>
  hashinkctl stats
  hashinkctl events

all commands accept --server <url> (default http://localhost:8080)`

type repeatStringFlag []string

func (r *repeatStringFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatStringFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	*r = append(*r, v)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	switch os.Args[1] {
	case "request":
		runRequest(os.Args[2:])
	case "balance":
		runBalance(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "events":
		runEvents(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func runRequest(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	switch args[0] {
	case "create":
		runRequestCreate(args[1:])
	case "get":
		runRequestGet(args[1:])
	case "cancel":
		runRequestCancel(args[1:])
	case "finalize":
		runRequestFinalize(args[1:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func runRequestCreate(args []string) {
	fs := flag.NewFlagSet("request create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	server := fs.String("server", "http://localhost:8080", "server base url")
	requester := fs.String("requester", "", "account paying into escrow")
	var recipients repeatStringFlag
	fs.Var(&recipients, "recipient", "recipient account (repeatable)")
	amount := fs.Uint64("amount", 0, "escrow amount")
	windowSeconds := fs.Int64("window-seconds", 0, "response window in seconds (0 uses the recipient default)")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if strings.TrimSpace(*requester) == "" || len(recipients) == 0 {
		fmt.Fprintln(os.Stderr, "--requester and at least one --recipient are required")
		os.Exit(2)
	}
	req, err := hashink.NewClient(*server).CreateRequest(context.Background(), hashink.CreateRequestParams{
		Requester:             *requester,
		Recipients:            recipients,
		Amount:                *amount,
		ResponseWindowSeconds: *windowSeconds,
	})
	exit(req, err)
}

func runRequestGet(args []string) {
	fs := flag.NewFlagSet("request get", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	server := fs.String("server", "http://localhost:8080", "server base url")
	id := fs.Uint64("id", 0, "request id")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	req, locked, err := hashink.NewClient(*server).GetRequest(context.Background(), *id)
	if err != nil {
		exit(nil, err)
	}
	exit(map[string]any{"request": req, "locked": locked}, nil)
}

func runRequestCancel(args []string) {
	fs := flag.NewFlagSet("request cancel", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	server := fs.String("server", "http://localhost:8080", "server base url")
	id := fs.Uint64("id", 0, "request id")
	caller := fs.String("caller", "", "account issuing the cancellation")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if strings.TrimSpace(*caller) == "" {
		fmt.Fprintln(os.Stderr, "--caller is required")
		os.Exit(2)
	}
	err := hashink.NewClient(*server).CancelRequest(context.Background(), *id, *caller)
	exit(map[string]any{"id": *id, "status": "CANCELLED"}, err)
}

func runRequestFinalize(args []string) {
	fs := flag.NewFlagSet("request finalize", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	server := fs.String("server", "http://localhost:8080", "server base url")
	id := fs.Uint64("id", 0, "request id")
	caller := fs.String("caller", "", "account issuing the finalization")
	contentRef := fs.String("content-ref", "", "content reference for the minted artifact")
	metadataRef := fs.String("metadata-ref", "", "metadata reference for the minted artifact")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if strings.TrimSpace(*caller) == "" || strings.TrimSpace(*contentRef) == "" || strings.TrimSpace(*metadataRef) == "" {
		fmt.Fprintln(os.Stderr, "--caller, --content-ref and --metadata-ref are required")
		os.Exit(2)
	}
	artifactID, err := hashink.NewClient(*server).FinalizeRequest(context.Background(), *id, *caller, *contentRef, *metadataRef)
	exit(map[string]any{"id": *id, "status": "FINALIZED", "artifact_id": artifactID}, err)
}

func runBalance(args []string) {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	server := fs.String("server", "http://localhost:8080", "server base url")
	account := fs.String("account", "", "account to look up")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if strings.TrimSpace(*account) == "" {
		fmt.Fprintln(os.Stderr, "--account is required")
		os.Exit(2)
	}
	balances, err := hashink.NewClient(*server).Balances(context.Background(), *account)
	exit(balances, err)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	server := fs.String("server", "http://localhost:8080", "server base url")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	stats, err := hashink.NewClient(*server).Stats(context.Background())
	exit(stats, err)
}

func runEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	server := fs.String("server", "http://localhost:8080", "server base url")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	events, hash, err := hashink.NewClient(*server).Events(context.Background())
	if err != nil {
		exit(nil, err)
	}
	exit(map[string]any{"events": events, "receipt_hash": hash}, nil)
}

// exit prints result as JSON on success, or the server's error envelope on
// failure, and sets the process exit code accordingly.
func exit(result any, err error) {
	if err != nil {
		var sdkErr *hashink.Error
		if errors.As(err, &sdkErr) {
			out, _ := json.Marshal(map[string]any{
				"status": "FAIL",
				"code":   sdkErr.ErrorCode,
				"reason": sdkErr.Message,
			})
			fmt.Println(string(out))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	out, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(out))
	os.Exit(0)
}
