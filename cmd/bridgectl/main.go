package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "set":
		runSet(os.Args[2:])
	case "enqueue":
		runEnqueue(os.Args[2:])
	case "params":
		runParams(os.Args[2:])
	case "logs":
		runLogs(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "bridgectl - operator CLI for the data bridge admin API")
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  bridgectl set -pkey PKEY -value VALUE")
	fmt.Fprintln(os.Stderr, "  bridgectl enqueue -method METHOD -path PATH -body JSON")
	fmt.Fprintln(os.Stderr, "  bridgectl params [-ptype PTYPE] [-q QUERY]")
	fmt.Fprintln(os.Stderr, "  bridgectl logs -channel CHANNEL [-n N]")
}

func commonFlags(fs *flag.FlagSet) (*string, *string) {
	base := fs.String("base-url", envOr("BRIDGECTL_BASE_URL", "http://127.0.0.1:8080"), "bridge admin API base URL")
	token := fs.String("token", os.Getenv("BRIDGECTL_TOKEN"), "admin X-Token")
	return base, token
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runSet(args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	base, token := commonFlags(fs)
	pkey := fs.String("pkey", "", "parameter key, e.g. MAP0001")
	value := fs.String("value", "", "value to write")
	fs.Parse(args)

	if *pkey == "" {
		fmt.Fprintln(os.Stderr, "set: -pkey is required")
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]string{"value": *value})
	doRequest(*base, *token, http.MethodPost, "/api/params/"+*pkey+"/value", body)
}

func runEnqueue(args []string) {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	base, token := commonFlags(fs)
	method := fs.String("method", "POST", "HTTP method of the enqueued job")
	path := fs.String("path", "", "destination path or URL")
	bodyStr := fs.String("body", "{}", "raw JSON body of the enqueued job")
	fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "enqueue: -path is required")
		os.Exit(1)
	}

	req := map[string]any{
		"method": *method,
		"path":   *path,
		"body":   json.RawMessage(*bodyStr),
	}
	body, err := json.Marshal(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "enqueue: invalid -body JSON: %v\n", err)
		os.Exit(1)
	}
	doRequest(*base, *token, http.MethodPost, "/api/outbox/enqueue", body)
}

func runParams(args []string) {
	fs := flag.NewFlagSet("params", flag.ExitOnError)
	base, token := commonFlags(fs)
	ptype := fs.String("ptype", "", "filter by parameter type")
	q := fs.String("q", "", "filter by pkey/name substring")
	fs.Parse(args)

	path := "/api/params?ptype=" + *ptype + "&q=" + *q
	doRequest(*base, *token, http.MethodGet, path, nil)
}

func runLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	base, token := commonFlags(fs)
	channel := fs.String("channel", "all", "log channel, or \"all\"")
	n := fs.Int("n", 100, "number of entries")
	fs.Parse(args)

	path := fmt.Sprintf("/api/logs/%s?n=%d", *channel, *n)
	doRequest(*base, *token, http.MethodGet, path, nil)
}

func doRequest(baseURL, token, method, path string, body []byte) {
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequest(method, baseURL+path, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Token", token)
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read response: %v\n", err)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, out, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(out))
	}

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}
