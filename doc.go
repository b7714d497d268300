// Package imagecapture drives Apple's ImageCaptureCore from Go: it discovers
// cameras, opens and closes device sessions and moves media files.
//
// A Controller owns the device browser and one session delegate per device,
// and runs a small state machine per device:
//
//	Discovered -> Opening -> Open -> Closing -> Closed
//	               |                   |
//	               +-> Discovered      +-> Error
//
// Removal moves any state to Removed and wins over every request in flight.
// Closed, Removed and Error never lead back to Open.
//
// Every native callback and every state mutation happens on one run loop
// thread (runloop.Loop; appkit.Loop on macOS). Exported Controller methods
// marshal onto that thread, so they can be called from any goroutine and from
// inside handlers alike.
//
// Requests are asynchronous. Validation failures (missing capability, a
// second transfer while one is pending, a removed device) come back from the
// call itself with no native side effect; everything later, including
// watchdog timeouts, arrives at the completion handler. Errors with nowhere
// to go reach Config.ErrorHandler.
//
//	loop := appkit.Main()
//	fw, _ := icc.New(loop)
//	ctrl, _ := imagecapture.New(loop, fw, imagecapture.DefaultConfig(), imagecapture.Handlers{
//		SessionOpened: func(d imagecapture.DeviceRef, err error) { ... },
//	})
//	_ = ctrl.Start()
//	loop.Run()
package imagecapture
