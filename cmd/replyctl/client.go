package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

type replyRequest struct {
	ChatID    string `json:"chat_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
	P2P       bool   `json:"p2p"`
	Mode      string `json:"mode,omitempty"`
}

// streamEvent mirrors the local channel event payload.
type streamEvent struct {
	Type      string `json:"type"`
	TriggerID string `json:"trigger_id"`
	Error     string `json:"error"`
	Record    *struct {
		ID      string            `json:"id"`
		Kind    string            `json:"kind"`
		Text    string            `json:"text"`
		Regions map[string]string `json:"regions"`
		State   string            `json:"state"`
	} `json:"record"`
}

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), token: strings.TrimSpace(token), http: &http.Client{}}
}

func baseURLFromAddr(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://127.0.0.1:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// replyAndFollow subscribes to the chat before posting so no event of the reply is missed.
func (c *apiClient) replyAndFollow(ctx context.Context, r replyRequest, out io.Writer) error {
	path := fmt.Sprintf("/chats/%s/stream?until=%s", url.PathEscape(r.ChatID), url.QueryEscape(r.MessageID))
	streamReq, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	streamReq.Header.Set("Accept", "text/event-stream")
	streamResp, err := c.http.Do(streamReq)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer streamResp.Body.Close()
	if streamResp.StatusCode != http.StatusOK {
		return responseError("open stream", streamResp)
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	postReq, err := c.newRequest(ctx, http.MethodPost, "/replies", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	postReq.Header.Set("Content-Type", "application/json")
	postResp, err := c.http.Do(postReq)
	if err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	postResp.Body.Close()
	if postResp.StatusCode != http.StatusAccepted {
		return responseError("post reply", postResp)
	}
	return follow(streamResp.Body, r.MessageID, out)
}

// follow prints the reply as it changes and returns the reply's error, if any.
func follow(body io.Reader, triggerID string, out io.Writer) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	shown := map[string]string{}
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		if ev.Type == "reply_ended" && ev.TriggerID == triggerID {
			if ev.Error != "" {
				return fmt.Errorf("reply failed: %s", ev.Error)
			}
			return nil
		}
		if ev.Record == nil || ev.Record.Kind == "trigger" {
			continue
		}
		text := ev.Record.Text
		if ev.Record.Kind == "card" && ev.Record.State == "open" {
			text = ev.Record.Regions["text"]
		}
		if prev := shown[ev.Record.ID]; text != "" && text != prev {
			if strings.HasPrefix(text, prev) {
				fmt.Fprint(out, text[len(prev):])
			} else {
				fmt.Fprintf(out, "\n%s", text)
			}
			shown[ev.Record.ID] = text
			if ev.Record.Kind == "text" {
				fmt.Fprintln(out)
			}
		}
		if ev.Record.Kind == "card" && ev.Record.State != "open" {
			fmt.Fprintln(out)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed before the reply ended")
}

func responseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s: %s: %s", op, resp.Status, strings.TrimSpace(string(body)))
}
