package commands

import (
	"fmt"
	"sync"
	"time"

	"objbridge/bridge"
	"objbridge/server"
)

const demoCameraClass = "org.objbridge.demo.Camera"

// DemoCamera produces a small synthetic image whose pixels depend on the frame count.
type DemoCamera struct {
	Label    string
	Width    int
	Height   int
	Exposure float64
	Binning  int

	mu     sync.Mutex
	frames int
	image  []uint16
}

func newDemoCamera(label string) *DemoCamera {
	return &DemoCamera{Label: label, Width: 8, Height: 8, Exposure: 10, Binning: 1}
}

func (c *DemoCamera) SetExposure(ms float64) { c.Exposure = ms }
func (c *DemoCamera) GetExposure() float64   { return c.Exposure }
func (c *DemoCamera) GetImageWidth() int     { return c.Width }
func (c *DemoCamera) GetImageHeight() int    { return c.Height }

func (c *DemoCamera) SnapImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	img := make([]uint16, c.Width*c.Height)
	for i := range img {
		img[i] = uint16((i + c.frames) * c.Binning)
	}
	c.image = img
}

func (c *DemoCamera) GetImage() ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.image == nil {
		return nil, fmt.Errorf("no image snapped on %s", c.Label)
	}
	return c.image, nil
}

func (c *DemoCamera) GetFrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// DemoCore is the singleton entry point. It owns the current camera.
type DemoCore struct {
	camera  *DemoCamera
	started time.Time
}

func (c *DemoCore) GetVersionInfo() string      { return "objbridge demo core" }
func (c *DemoCore) GetCameraDevice() string     { return c.camera.Label }
func (c *DemoCore) GetCamera() *DemoCamera      { return c.camera }
func (c *DemoCore) SetExposure(ms float64)      { c.camera.SetExposure(ms) }
func (c *DemoCore) GetExposure() float64        { return c.camera.GetExposure() }
func (c *DemoCore) SnapImage()                  { c.camera.SnapImage() }
func (c *DemoCore) GetImage() ([]uint16, error) { return c.camera.GetImage() }

func (c *DemoCore) GetUptime() float64 {
	return time.Since(c.started).Seconds()
}

// registerDemo exposes the demo classes on svr.
func registerDemo(svr *server.Server) error {
	_, err := svr.Register(demoCameraClass, newDemoCamera("Camera"),
		server.Implements("org.objbridge.demo.Device"),
		server.Constructor(func() *DemoCamera { return newDemoCamera("Camera") }),
		server.Constructor(func(label string) *DemoCamera { return newDemoCamera(label) }),
		server.Constructor(func(label string, width, height int) *DemoCamera {
			c := newDemoCamera(label)
			c.Width, c.Height = width, height
			return c
		}),
	)
	if err != nil {
		return err
	}

	core := &DemoCore{camera: newDemoCamera("Camera"), started: time.Now()}
	_, err = svr.Register(bridge.ClassCore, core,
		server.Singleton(),
		server.Overload("setExposure", func(c *DemoCore, label string, ms float64) error {
			if label != c.camera.Label {
				return fmt.Errorf("no camera device %q", label)
			}
			c.camera.SetExposure(ms)
			return nil
		}),
	)
	return err
}
