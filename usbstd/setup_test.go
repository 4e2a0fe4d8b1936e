package usbstd

import (
	"reflect"
	"testing"
)

func TestGetDescriptorRoundTrip(t *testing.T) {
	want := GetDescriptor(DescriptorTypeDevice, 0, 64)
	got, ok := ParseSetupPacket(want.Bytes())
	if !ok {
		t.Fatal("ParseSetupPacket: ok = false")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.RequestType != RequestDirectionDeviceToHost {
		t.Errorf("RequestType = %#x, want device-to-host", got.RequestType)
	}
}

func TestSetAddressRoundTrip(t *testing.T) {
	want := SetAddress(11)
	got, ok := ParseSetupPacket(want.Bytes())
	if !ok {
		t.Fatal("ParseSetupPacket: ok = false")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.Value != 11 {
		t.Errorf("Value = %d, want 11", got.Value)
	}
}

func TestParseSetupPacketTooShort(t *testing.T) {
	if _, ok := ParseSetupPacket([]byte{0x80, 0x06}); ok {
		t.Error("ok = true for a truncated packet")
	}
}
