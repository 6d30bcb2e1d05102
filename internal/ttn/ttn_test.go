package ttn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

func uplinkLine(receivedAt string, frequency string, payload string, gateways ...string) string {
	var rx []string
	for i, gw := range gateways {
		rx = append(rx, fmt.Sprintf(`{"gateway_ids":{"gateway_id":%q,"eui":"EUI%d"},"rssi":%d}`, gw, i, -90-i*10))
	}
	return fmt.Sprintf(`{"result":{"end_device_ids":{"device_id":"dev1"},"received_at":%q,"uplink_message":{"decoded_payload":%s,"rx_metadata":[%s],"settings":{"frequency":%q}}}}`,
		receivedAt, payload, strings.Join(rx, ","), frequency)
}

func TestChannel(t *testing.T) {
	tests := []struct {
		freq uint64
		want int
		ok   bool
	}{
		{868_100_000, 0, true},
		{868_500_000, 2, true},
		{867_100_000, 3, true},
		{867_900_000, 7, true},
		{868_800_000, 8, true},
		{869_525_000, UnknownChannel, false},
	}
	for _, tt := range tests {
		got, ok := Channel(tt.freq)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Channel(%d): expected (%d, %v), got (%d, %v)", tt.freq, tt.want, tt.ok, got, ok)
		}
	}
}

func TestDecodeStream(t *testing.T) {
	stream := strings.Join([]string{
		uplinkLine("2024-04-15T09:29:01.123456789Z", "868300000", `{"analog_in_8":3.91,"digital_in_4":1,"digital_out_5":5}`, "gw1", "gw2"),
		"",
		`{"result":{"received_at":"2024-04-15T09:29:02Z","uplink_message":{"rx_metadata":[]}}}`,
		uplinkLine("2024-04-15T09:29:03Z", "868100000", `{"gps_3":{"latitude":39.48,"longitude":-0.34,"altitude":12}}`, "gw1"),
		uplinkLine("2024-04-15T09:29:04Z", "869525000", `{"temperature_1":21.5}`, "gw2"),
	}, "\n")

	uplinks, err := Decoder{UsedChannelField: "digital_out_5"}.DecodeStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(uplinks) != 3 {
		t.Fatalf("Expected 3 uplinks with a decoded payload, got %d", len(uplinks))
	}

	first := uplinks[0]
	if first.Channel != 1 || first.Frequency != 868_300_000 {
		t.Errorf("Expected channel 1 at 868.3 MHz, got %d at %d", first.Channel, first.Frequency)
	}
	if len(first.Receptions) != 2 || first.Receptions[1].GatewayID != "gw2" || first.Receptions[1].RSSI != -100 {
		t.Errorf("Unexpected receptions: %+v", first.Receptions)
	}
	reading, ok := first.Payload.(Reading)
	if !ok {
		t.Fatalf("Expected a Reading payload, got %T", first.Payload)
	}
	if reading.Battery == nil || *reading.Battery != 3.91 {
		t.Errorf("Expected battery 3.91, got %v", reading.Battery)
	}
	if reading.Indoor == nil || !*reading.Indoor {
		t.Errorf("Expected indoor, got %v", reading.Indoor)
	}
	if reading.UsedChannels == nil || reading.UsedChannels.Channels()[1] != 2 {
		t.Errorf("Expected used channels [0 2], got %v", reading.UsedChannels)
	}

	fix, ok := uplinks[1].Payload.(GPSFix)
	if !ok || fix.Latitude != 39.48 || fix.Longitude != -0.34 || fix.Altitude != 12 {
		t.Errorf("Expected a GPS fix, got %#v", uplinks[1].Payload)
	}

	if uplinks[2].ChannelKnown() {
		t.Errorf("Expected an unknown channel for 869.525 MHz")
	}
	if _, ok := uplinks[2].Payload.(Unknown); !ok {
		t.Errorf("Expected an Unknown payload, got %T", uplinks[2].Payload)
	}

	readings := Readings(uplinks)
	if len(readings) != 2 {
		t.Errorf("Expected the unknown channel uplink to be skipped, got %d readings", len(readings))
	}
}

func TestFilterRange(t *testing.T) {
	base := time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC)
	var uplinks []Uplink
	for i := 0; i < 5; i++ {
		uplinks = append(uplinks, Uplink{ReceivedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	got := FilterRange(uplinks, base.Add(time.Minute), base.Add(3*time.Minute))
	if len(got) != 3 {
		t.Fatalf("Expected 3 uplinks in the closed range, got %d", len(got))
	}
	if !got[0].ReceivedAt.Equal(base.Add(time.Minute)) || !got[2].ReceivedAt.Equal(base.Add(3*time.Minute)) {
		t.Errorf("Unexpected range bounds: %v .. %v", got[0].ReceivedAt, got[2].ReceivedAt)
	}
}

func TestStorageClient_Latest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Expected bearer auth, got %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("Expected limit 2, got %q", got)
		}
		if got := r.URL.Query().Get("order"); got != OrderNewestFirst {
			t.Errorf("Expected newest first order, got %q", got)
		}
		fmt.Fprintln(w, uplinkLine("2024-04-15T09:29:05Z", "868100000", `{"digital_in_4":0}`, "gw1"))
		fmt.Fprintln(w, uplinkLine("2024-04-15T09:29:01Z", "868300000", `{"digital_in_4":1}`, "gw1"))
	}))
	defer srv.Close()

	c := NewStorageClient(srv.URL, "key", WithRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}))
	uplinks, err := c.Latest(context.Background(), 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if calls.Load() != 2 {
		t.Errorf("Expected 1 retry, got %d calls", calls.Load())
	}
	if len(uplinks) != 2 || uplinks[0].Channel != 1 || uplinks[1].Channel != 0 {
		t.Errorf("Expected uplinks oldest first, got %+v", uplinks)
	}
}

func TestStorageClient_PermanentError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewStorageClient(srv.URL, "bad", WithRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}))
	_, err := c.Latest(context.Background(), 5)
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("Expected ErrUnexpectedStatus, got %v", err)
	}

	var sErr *StatusError
	if !errors.As(err, &sErr) || sErr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected no retry on 401, got %d calls", calls.Load())
	}
}

func TestDownlinker_Push(t *testing.T) {
	var got []downlinkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req downlinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
		got = append(got, req)
		if r.URL.Path == "/dev2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDownlinker([]string{srv.URL + "/dev1", srv.URL + "/dev2"}, "key", WithDownlinkRetry(RetryConfig{MaxAttempts: 1}))
	err := d.EnableGPS(context.Background())
	if err == nil || !strings.Contains(err.Error(), "/dev2") {
		t.Errorf("Expected an error for dev2, got %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("Expected both devices to be attempted, got %d requests", len(got))
	}
	dl := got[0].Downlinks[0]
	if string(dl.FrmPayload) != "E" || dl.FPort != 1 || dl.Priority != PriorityNormal {
		t.Errorf("Unexpected downlink %+v", dl)
	}
}

func TestDownlink_FrmPayloadEncoding(t *testing.T) {
	for _, tt := range []struct {
		cmd  []byte
		want string
	}{
		{CommandGPSEnable, "RQ=="},
		{CommandGPSDisable, "SQ=="},
	} {
		data, err := json.Marshal(downlinkJSON{FrmPayload: tt.cmd})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !strings.Contains(string(data), `"frm_payload":"`+tt.want+`"`) {
			t.Errorf("Expected frm_payload %s, got %s", tt.want, data)
		}
	}
}

func TestSubscriber_KeepsLatest(t *testing.T) {
	s := NewSubscriber(MQTTConfig{Buffer: 3})
	s.client = MQTT.NewClient(MQTT.NewClientOptions())

	for i := 0; i < 5; i++ {
		line := uplinkLine(fmt.Sprintf("2024-04-15T09:29:0%dZ", i), "868100000", `{"digital_in_4":1}`, "gw1")
		var envelope struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		s.handle(envelope.Result)
	}
	s.handle([]byte("not json"))

	got, err := s.Latest(context.Background(), 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ReceivedAt.Second() != 3 || got[1].ReceivedAt.Second() != 4 {
		t.Errorf("Expected the last 2 uplinks, got %+v", got)
	}

	all, _ := s.Latest(context.Background(), 10)
	if len(all) != 3 {
		t.Errorf("Expected the buffer to hold 3 uplinks, got %d", len(all))
	}
}

func TestSubscriber_NotConnected(t *testing.T) {
	_, err := NewSubscriber(MQTTConfig{}).Latest(context.Background(), 1)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}
