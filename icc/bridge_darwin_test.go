//go:build darwin && cgo

package icc

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imagecapture "github.com/shaban/imagecapture"
	"github.com/shaban/imagecapture/appkit"
	"github.com/shaban/imagecapture/delegate"
	"github.com/shaban/imagecapture/internal/testutil"
)

func TestMain(m *testing.M) {
	loop := appkit.Main()
	code := 0
	go func() {
		code = m.Run()
		loop.Stop()
	}()
	if err := loop.Run(); err != nil {
		panic(err)
	}
	os.Exit(code)
}

func onMain(t *testing.T, fn func() error) {
	t.Helper()
	require.NoError(t, appkit.Main().RunSync(func(context.Context) error { return fn() }))
}

type noDispatch struct{}

func (noDispatch) Resolve(delegate.Token) (*delegate.Registration, bool) { return nil, false }

func TestDefineClassAndReceivers(t *testing.T) {
	fw, err := New(appkit.Main())
	require.NoError(t, err)
	rt := fw.Runtime
	name := "GoICCTest" + strings.ReplaceAll(uuid.NewString(), "-", "") + "CameraDeviceDelegate"

	onMain(t, func() error {
		assert.False(t, rt.ClassExists(name))
		require.NoError(t, rt.DefineClass(name, delegate.RoleDeviceSession))
		assert.True(t, rt.ClassExists(name))

		err := rt.DefineClass(name, delegate.RoleDeviceSession)
		assert.True(t, errors.Is(err, delegate.ErrRegistrationConflict), "redefining: %v", err)

		rcv, err := rt.NewReceiver(name, noDispatch{}, 7)
		require.NoError(t, err)
		assert.False(t, rcv.IsNil())
		rt.ReleaseReceiver(rcv)

		_, err = rt.NewReceiver(name+"Missing", noDispatch{}, 8)
		assert.Error(t, err)
		return nil
	})
}

func TestRegistryOnRealRuntime(t *testing.T) {
	fw, err := New(appkit.Main())
	require.NoError(t, err)
	reg := delegate.NewRegistry(fw.Runtime, delegate.Options{
		ClassPrefix: "GoICCTest" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	})

	onMain(t, func() error {
		r, err := reg.RegisterBrowser(delegate.BrowserHandlers{})
		require.NoError(t, err)
		assert.False(t, r.Receiver().IsNil())
		require.NoError(t, r.Release())
		assert.ErrorIs(t, r.Release(), delegate.ErrReleased)
		return nil
	})
}

// TestBrowseAttachedCameras lists whatever is plugged in. It needs real
// hardware and is skipped otherwise.
func TestBrowseAttachedCameras(t *testing.T) {
	testutil.SkipUnlessEnv(t, "ICC_HARDWARE", "1")
	if testutil.IsCI() {
		t.Skip("no cameras on CI")
	}

	loop := appkit.Main()
	fw, err := New(loop)
	require.NoError(t, err)

	changed := make(chan []imagecapture.DeviceRef, 4)
	ctrl, err := imagecapture.New(loop, fw, imagecapture.Config{AutoOpen: imagecapture.AutoOpenNone}, imagecapture.Handlers{
		DevicesChanged: func(refs []imagecapture.DeviceRef) { changed <- refs },
	})
	require.NoError(t, err)
	require.NoError(t, ctrl.Start())
	defer func() { assert.NoError(t, ctrl.Stop()) }()

	select {
	case refs := <-changed:
		for _, r := range refs {
			info, err := ctrl.Info(r.ID)
			require.NoError(t, err)
			t.Logf("%s (%s, %s) caps=%s", info.Name, info.Type, info.Transport, info.Capabilities)
		}
	case <-time.After(10 * time.Second):
		t.Log("no device batch within 10s")
	}
}
