package portmapper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/huin/goupnp/soap"
	"github.com/stretchr/testify/require"
)

// fakeUPnPClient implements upnpClient without a device on the network.
type fakeUPnPClient struct {
	addErrs    []error // consumed per AddPortMappingCtx call
	deleteErr  error
	queryErr   error
	queryLease uint32

	addLeases []uint32 // lease durations requested
	deletes   []uint16
}

func (f *fakeUPnPClient) AddPortMappingCtx(_ context.Context, _ string, _ uint16, _ string,
	_ uint16, _ string, _ bool, _ string, lease uint32) error {
	f.addLeases = append(f.addLeases, lease)
	if len(f.addErrs) > 0 {
		err := f.addErrs[0]
		f.addErrs = f.addErrs[1:]
		return err
	}
	return nil
}

func (f *fakeUPnPClient) DeletePortMappingCtx(_ context.Context, _ string, port uint16, _ string) error {
	f.deletes = append(f.deletes, port)
	return f.deleteErr
}

func (f *fakeUPnPClient) GetSpecificPortMappingEntryCtx(_ context.Context, _ string, port uint16, _ string) (
	uint16, string, bool, string, uint32, error) {
	if f.queryErr != nil {
		return 0, "", false, "", 0, f.queryErr
	}
	return port, "192.168.1.2", true, mappingDescription, f.queryLease, nil
}

func soapFault(code int) error {
	fault := &soap.SOAPFaultError{FaultCode: "s:Client", FaultString: "UPnPError"}
	fault.Detail.UPnPError.Errorcode = code
	return fault
}

func testUPnPGateway(client upnpClient) *upnpGateway {
	return &upnpGateway{client: client, id: "upnp:test", kind: "WANIPConnection2", lease: 15 * time.Minute}
}

func TestUPnPGateway(t *testing.T) {
	ctx := context.Background()
	mp := NewMapping(TCP, 6881)

	orig := localListenIP
	localListenIP = func() (string, error) { return "192.168.1.2", nil }
	t.Cleanup(func() { localListenIP = orig })

	t.Run("Create grants a finite lease", func(t *testing.T) {
		client := &fakeUPnPClient{}
		lease, err := testUPnPGateway(client).CreateMapping(ctx, mp)
		require.NoError(t, err)
		require.Equal(t, mp, lease.Mapping)
		require.Equal(t, 15*time.Minute, lease.Lifetime)
		require.False(t, lease.Expiry.IsZero())
		require.Equal(t, []uint32{900}, client.addLeases)
	})

	t.Run("Permanent-lease-only routers get a zero lifetime retry", func(t *testing.T) {
		client := &fakeUPnPClient{addErrs: []error{soapFault(upnpErrOnlyPermanentLeases)}}
		lease, err := testUPnPGateway(client).CreateMapping(ctx, mp)
		require.NoError(t, err)
		require.Zero(t, lease.Lifetime)
		require.True(t, lease.Expiry.IsZero())
		require.Equal(t, []uint32{900, 0}, client.addLeases)
	})

	t.Run("Create failure propagates", func(t *testing.T) {
		client := &fakeUPnPClient{addErrs: []error{soapFault(718)}} // ConflictInMappingEntry
		_, err := testUPnPGateway(client).CreateMapping(ctx, mp)
		require.Error(t, err)
	})

	t.Run("Delete maps error 714 to ErrNoSuchMapping", func(t *testing.T) {
		client := &fakeUPnPClient{deleteErr: soapFault(upnpErrNoSuchEntry)}
		err := testUPnPGateway(client).DeleteMapping(ctx, &Lease{Mapping: mp})
		require.ErrorIs(t, err, ErrNoSuchMapping)
		require.Equal(t, []uint16{mp.PublicPort}, client.deletes)
	})

	t.Run("Query returns the gateway's view of the mapping", func(t *testing.T) {
		client := &fakeUPnPClient{queryLease: 600}
		lease, err := testUPnPGateway(client).QueryMapping(ctx, TCP, 6881)
		require.NoError(t, err)
		require.Equal(t, 10*time.Minute, lease.Lifetime)
		require.Equal(t, uint16(6881), lease.Mapping.PublicPort)
	})

	t.Run("Query maps error 714 to ErrNoSuchMapping", func(t *testing.T) {
		client := &fakeUPnPClient{queryErr: soapFault(upnpErrNoSuchEntry)}
		_, err := testUPnPGateway(client).QueryMapping(ctx, TCP, 6881)
		require.ErrorIs(t, err, ErrNoSuchMapping)
	})
}

func TestUPnPErrorCode(t *testing.T) {
	require.Equal(t, 714, upnpErrorCode(soapFault(714)))
	require.Zero(t, upnpErrorCode(nil))
	require.Zero(t, upnpErrorCode(errors.New("plain error")))
}
