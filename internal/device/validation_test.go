package device

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "valid name", input: "Lamp"},
		{name: "valid name with special characters", input: "Kitchen (Main) Light"},
		{name: "empty name", input: "", wantErr: ErrInvalidName},
		{name: "whitespace only", input: "   ", wantErr: ErrInvalidName},
		{name: "name at max length", input: strings.Repeat("a", maxNameLength)},
		{name: "name exceeds max length", input: strings.Repeat("a", maxNameLength+1), wantErr: ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateName(%q) = %v, want nil", tt.input, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) || !errors.Is(err, docstore.ErrValidation) {
				t.Errorf("ValidateName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNewDevice(t *testing.T) {
	valid := NewDevice{Name: "Lamp", Type: TypeLight, RoomID: "r1", IPAddress: "192.168.4.1", SSID: "ESP8266-A1"}

	tests := []struct {
		name    string
		mutate  func(*NewDevice)
		wantErr error
	}{
		{name: "valid", mutate: func(*NewDevice) {}},
		{name: "fan", mutate: func(d *NewDevice) { d.Type = TypeFan }},
		{name: "ipv6", mutate: func(d *NewDevice) { d.IPAddress = "fe80::1" }},
		{name: "unknown type", mutate: func(d *NewDevice) { d.Type = "toaster" }, wantErr: ErrInvalidDeviceType},
		{name: "no room", mutate: func(d *NewDevice) { d.RoomID = "" }, wantErr: ErrMissingRoom},
		{name: "bad ip", mutate: func(d *NewDevice) { d.IPAddress = "not-an-ip" }, wantErr: ErrInvalidAddress},
		{name: "long ssid", mutate: func(d *NewDevice) { d.SSID = strings.Repeat("s", 33) }, wantErr: ErrInvalidSSID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			err := ValidateNewDevice(d)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateNewDevice() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateNewDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReading(t *testing.T) {
	tests := []struct {
		name    string
		reading VoltageReading
		wantErr bool
	}{
		{name: "valid", reading: VoltageReading{Voltage: 120, Current: 1.2, Power: 144}},
		{name: "zeros", reading: VoltageReading{}},
		{name: "negative voltage", reading: VoltageReading{Voltage: -1}, wantErr: true},
		{name: "nan current", reading: VoltageReading{Current: math.NaN()}, wantErr: true},
		{name: "infinite power", reading: VoltageReading{Power: math.Inf(1)}, wantErr: true},
		{name: "negative timestamp", reading: VoltageReading{Timestamp: -5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReading(tt.reading)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateReading() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidReading) {
				t.Errorf("ValidateReading() error = %v, want ErrInvalidReading", err)
			}
		})
	}
}

func TestType_Valid(t *testing.T) {
	for _, typ := range AllTypes() {
		if !typ.Valid() {
			t.Errorf("%q.Valid() = false", typ)
		}
	}
	if Type("").Valid() || Type("LIGHT").Valid() {
		t.Error("unexpected valid type")
	}
}

func TestClampLimit(t *testing.T) {
	tests := map[int]int{0: DefaultReadingsLimit, -3: DefaultReadingsLimit, 1: 1, 500: 500, 5000: MaxReadingsLimit}
	for in, want := range tests {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
