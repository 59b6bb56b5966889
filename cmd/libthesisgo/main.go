// Command libthesisgo builds ThesisGo as a C shared library:
//
//	go build -buildmode=c-shared -o libthesisgo.so ./cmd/libthesisgo
package main

/*
#include <stdlib.h>

// topic: event name, payload: JSON
typedef void (*EventCallback)(char* topic, char* payload);

// Go cannot call a C function pointer directly.
static void invokeCallback(EventCallback cb, char* topic, char* payload) {
    if (cb) {
        cb(topic, payload);
    }
}
*/
import "C"
import (
	"strings"
	"sync"
	"unsafe"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/service"
	"github.com/dyike/ThesisGo/pkg/app"
	"github.com/dyike/ThesisGo/pkg/bridge"
)

var (
	globalCallback C.EventCallback

	mu      sync.Mutex
	sdkRuntime *app.Runtime
)

func init() {
	bridge.SetNotifyImpl(func(topic, payload string) {
		if globalCallback == nil {
			return
		}
		cTopic := C.CString(topic)
		cPayload := C.CString(payload)
		defer C.free(unsafe.Pointer(cTopic))
		defer C.free(unsafe.Pointer(cPayload))

		C.invokeCallback(globalCallback, cTopic, cPayload)
	})
}

//export InitSDK
func InitSDK(workDir *C.char, configJson *C.char) *C.char {
	dir := C.GoString(workDir)
	cfgJSON := C.GoString(configJson)

	if err := initRuntime(dir, cfgJSON); err != nil {
		return C.CString("Error: " + err.Error())
	}
	return C.CString("Success")
}

func initRuntime(dir, cfgJSON string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := logger.Init(false); err != nil {
		return err
	}
	mgr, err := config.NewManager(
		config.WithConfigDir(dir),
		config.WithInitialConfig(config.DefaultConfigWithRoot(dir)),
	)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfgJSON) != "" {
		if err := mgr.UpdateFromJSON(cfgJSON); err != nil {
			return err
		}
	}

	rt, err := app.NewRuntime(mgr, app.WithNotifier(bridge.Notify))
	if err != nil {
		return err
	}
	if sdkRuntime != nil {
		sdkRuntime.Close()
	}
	sdkRuntime = rt
	service.SetDefault(service.FromRuntime(rt))
	return nil
}

//export RegisterCallback
func RegisterCallback(cb C.EventCallback) {
	globalCallback = cb
}

//export UpdateConfig
func UpdateConfig(jsonStr *C.char) *C.char {
	newCfg := C.GoString(jsonStr)

	mu.Lock()
	rt := sdkRuntime
	mu.Unlock()
	if rt == nil {
		return C.CString("Error: SDK not initialized")
	}
	if err := rt.UpdateConfigJSON(newCfg); err != nil {
		return C.CString("Error: " + err.Error())
	}
	return C.CString("Success")
}

//export Call
func Call(method *C.char, params *C.char) *C.char {
	m := C.GoString(method)
	p := C.GoString(params)

	return C.CString(service.Dispatch(m, p))
}

//export FreeString
func FreeString(str *C.char) {
	C.free(unsafe.Pointer(str))
}

func main() {}
