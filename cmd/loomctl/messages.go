package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func runSend(api, user, channelID, dmID, content, parent string, mentions []string, out io.Writer) error {
	body := map[string]interface{}{
		"senderId": user,
		"content":  content,
	}
	if channelID != "" {
		body["channelId"] = channelID
	}
	if dmID != "" {
		body["dmChannelId"] = dmID
	}
	if parent != "" {
		body["parentMessageId"] = parent
	}
	if len(mentions) > 0 {
		body["mentionedUserIds"] = mentions
	}

	resp, err := postJSON(api+"/api/messages", body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		return httpError(resp)
	}
	var msg struct {
		MessageID string `json:"messageId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return err
	}
	fmt.Fprintf(out, "sent %s\n", msg.MessageID)
	return nil
}

func runRead(api, user, channelID, dmID string, out io.Writer) error {
	body := map[string]string{}
	if channelID != "" {
		body["channelId"] = channelID
	}
	if dmID != "" {
		body["dmChannelId"] = dmID
	}

	resp, err := postJSON(fmt.Sprintf("%s/api/users/%s/reads", api, url.PathEscape(user)), body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent {
		return httpError(resp)
	}
	fmt.Fprintln(out, "read")
	return nil
}

func runUnread(api, user, channelID, dmID string, out io.Writer) error {
	q := url.Values{}
	if channelID != "" {
		q.Set("channelId", channelID)
	}
	if dmID != "" {
		q.Set("dmChannelId", dmID)
	}

	resp, err := httpClient.Get(fmt.Sprintf("%s/api/users/%s/unread?%s", api, url.PathEscape(user), q.Encode()))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	var counter struct {
		UnreadCount int  `json:"unreadCount"`
		HasMention  bool `json:"hasMention"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&counter); err != nil {
		return err
	}
	fmt.Fprintf(out, "unread=%d mention=%v\n", counter.UnreadCount, counter.HasMention)
	return nil
}

func postJSON(u string, body interface{}) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	return httpClient.Post(u, "application/json", &buf)
}

func httpError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(data))
}
