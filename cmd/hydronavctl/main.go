// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command hydronavctl is the CLI client for the Hydronav resolve server.
//
// Usage:
//
//	hydronavctl ask "useful volume of Balbina"
//	hydronavctl route "gtmax of Itaipu"
//	hydronavctl entity "how full is the balbino reservoir"
//	hydronavctl tools
//	hydronavctl health
//
// The server address comes from --server or HYDRONAV_SERVER_URL, defaulting
// to http://localhost:8080.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hydronav/hydronav/services/resolve"
	"github.com/hydronav/hydronav/services/resolve/routing"
)

var (
	serverURL string
	maxRows   int
)

func main() {
	root := &cobra.Command{
		Use:   "hydronavctl",
		Short: "CLI client for the Hydronav resolve server",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "", "Server base URL (default $HYDRONAV_SERVER_URL or http://localhost:8080)")

	askCmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Resolve a question and execute the selected tool",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand,
	}
	askCmd.Flags().IntVar(&maxRows, "max-rows", 0, "Cap tabular results (0 = tool default)")

	routeCmd := &cobra.Command{
		Use:   "route <question...>",
		Short: "Show the routing decision without executing anything",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRouteCommand,
	}

	entityCmd := &cobra.Command{
		Use:   "entity <text...>",
		Short: "Resolve a plant reference to its canonical code",
		Args:  cobra.MinimumNArgs(1),
		Run:   runEntityCommand,
	}

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools",
		Run:   runToolsCommand,
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Run:   runHealthCommand,
	}

	root.AddCommand(askCmd, routeCmd, entityCmd, toolsCmd, healthCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func baseURL() string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	if env := os.Getenv("HYDRONAV_SERVER_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return "http://localhost:8080"
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func postJSON(path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(baseURL()+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("request failed (is the server running at %s?): %w", baseURL(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr resolve.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}
	return json.Unmarshal(data, out)
}

func getJSON(path string, out any) error {
	resp, err := httpClient.Get(baseURL() + path)
	if err != nil {
		return fmt.Errorf("request failed (is the server running at %s?): %w", baseURL(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}
	return json.Unmarshal(data, out)
}

func runAskCommand(_ *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	askOnce(question)
}

// askOnce sends one query; when the server asks for disambiguation it reads
// the pick from stdin and re-sends the option's envelope.
func askOnce(query string) {
	var resp resolve.QueryResponse
	if err := postJSON("/v1/resolve/query", resolve.QueryRequest{Query: query, MaxRows: maxRows}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch resp.Outcome.Kind {
	case routing.OutcomeExecute:
		fmt.Printf("Tool: %s (%s)\n\n", resp.Outcome.ToolName, resp.Outcome.Reason)
		if resp.Result != nil {
			fmt.Println(resp.Result.Summary)
			if resp.Result.Payload != nil {
				pretty, err := json.MarshalIndent(resp.Result.Payload, "", "  ")
				if err == nil {
					fmt.Printf("\n%s\n", pretty)
				}
			}
		}

	case routing.OutcomeDisambiguate:
		fmt.Println("Your question matches more than one data source:")
		for i, opt := range resp.Outcome.Options {
			fmt.Printf("  %d. %s (score %.2f)\n", i+1, opt.ShortLabel, opt.Score)
		}
		fmt.Print("Pick a number (or press Enter to cancel): ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			fmt.Println("Cancelled.")
			return
		}
		pick, err := strconv.Atoi(line)
		if err != nil || pick < 1 || pick > len(resp.Outcome.Options) {
			fmt.Fprintln(os.Stderr, "Invalid selection.")
			os.Exit(1)
		}
		askOnce(resp.Outcome.Options[pick-1].Envelope)

	case routing.OutcomeDecline:
		fmt.Println("No data source matched this question with enough confidence.")
	}
}

func runRouteCommand(_ *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	var resp resolve.RouteResponse
	if err := postJSON("/v1/resolve/route", resolve.QueryRequest{Query: question}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Outcome: %s (%s)\n", resp.Outcome.Kind, resp.Outcome.Reason)
	if resp.Outcome.ToolName != "" {
		fmt.Printf("Tool:    %s\n", resp.Outcome.ToolName)
	}
	for _, opt := range resp.Outcome.Options {
		fmt.Printf("Option:  %s (%s, score %.2f)\n", opt.ShortLabel, opt.ToolName, opt.Score)
	}
}

func runEntityCommand(_ *cobra.Command, args []string) {
	text := strings.Join(args, " ")

	var resp resolve.EntityResponse
	if err := postJSON("/v1/resolve/entity", resolve.EntityRequest{Query: text}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !resp.Resolved {
		fmt.Println("No plant identified.")
		return
	}
	fmt.Printf("Plant:   %s (%s)\n", resp.FullName, resp.PlantName)
	fmt.Printf("Code:    %d\n", resp.Code)
	if resp.StationRef != 0 {
		fmt.Printf("Station: %d\n", resp.StationRef)
	}
}

func runToolsCommand(_ *cobra.Command, _ []string) {
	var resp struct {
		Tools []resolve.ToolInfo `json:"tools"`
	}
	if err := getJSON("/v1/resolve/tools", &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, t := range resp.Tools {
		fmt.Printf("%s\n    %s\n", t.Name, t.Capability)
	}
}

func runHealthCommand(_ *cobra.Command, _ []string) {
	var resp map[string]any
	if err := getJSON("/v1/resolve/health", &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	pretty, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(pretty))
}
