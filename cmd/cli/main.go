package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}

	reader := bufio.NewReader(os.Stdin)
	ask := func(prompt string) string {
		fmt.Print(prompt)
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}

	raw := ask("Enter a site URL to monitor (e.g., https://example.com): ")
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		fmt.Println("Invalid URL.")
		os.Exit(1)
	}
	word := ask("Text the page must contain: ")
	if word == "" {
		fmt.Println("A valid word is required.")
		os.Exit(1)
	}

	payload := map[string]any{"url": raw, "valid_word": word}
	if name := ask("Display name (optional): "); name != "" {
		payload["name"] = name
	}
	if v := ask("Check interval in seconds (60-3600, blank for default): "); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fmt.Println("Interval must be a number.")
			os.Exit(1)
		}
		payload["check_interval"] = n
	}
	if dest := ask("Alert destination, Telegram chat id or Slack webhook (optional): "); dest != "" {
		payload["alert_destination"] = dest
	}

	body, _ := json.Marshal(payload)
	client := &http.Client{Timeout: 45 * time.Second}
	resp, err := client.Post(api+"/api/targets", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Println("Error contacting API:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var created struct {
			ID string `json:"id"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&created)
		fmt.Printf("Added %s. History: GET %s/api/targets/%s/checks\n", created.ID, api, created.ID)
		return
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("API returned %s: %s\n", resp.Status, strings.TrimSpace(string(msg)))
	os.Exit(1)
}
