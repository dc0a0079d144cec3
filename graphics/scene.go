package graphics

import (
	"fmt"

	"github.com/PepcyCh/bisemutum-engine-sub001/handle"
	"github.com/PepcyCh/bisemutum-engine-sub001/resource"
	"github.com/PepcyCh/bisemutum-engine-sub001/shaderparams"
)

// CameraParams is the uniform block shared by every pass rendering a
// camera.
type CameraParams struct {
	View       [4][4]float32 `shader:"view"`
	Projection [4][4]float32 `shader:"projection"`
	Position   [3]float32    `shader:"position"`
	Near       float32       `shader:"near"`
	Far        float32       `shader:"far"`
}

// Camera is a view the scene is rendered from. The manager only stores
// cameras; passes read them.
type Camera struct {
	Name   string
	Params CameraParams
	// Target is rendered to instead of the back buffer when set.
	Target *resource.Texture
}

// DrawableParams is the per-object uniform block.
type DrawableParams struct {
	Model [4][4]float32 `shader:"model"`
	// NormalMatrix is the inverse transpose of Model's upper 3x3, padded
	// to three columns of four.
	NormalMatrix [3][4]float32 `shader:"normal_matrix"`
}

// Drawable is an object submitted for rendering.
type Drawable struct {
	Name   string
	Params DrawableParams
	// Material holds a shader parameter struct for the drawable's
	// material, or nil.
	Material any
}

// AddCamera stores c and returns its handle.
func (m *Manager) AddCamera(c *Camera) handle.Handle { return m.cameras.Insert(c) }

// Camera returns the camera behind h.
func (m *Manager) Camera(h handle.Handle) (*Camera, bool) { return m.cameras.Get(h) }

// RemoveCamera removes the camera behind h. Stale handles report false.
func (m *Manager) RemoveCamera(h handle.Handle) bool { return m.cameras.Remove(h) }

// NumCameras returns the number of cameras.
func (m *Manager) NumCameras() int { return m.cameras.Len() }

// EachCamera calls fn for every camera in slot order.
func (m *Manager) EachCamera(fn func(handle.Handle, *Camera)) { m.cameras.Each(fn) }

// AddDrawable stores d and returns its handle.
func (m *Manager) AddDrawable(d *Drawable) handle.Handle { return m.drawables.Insert(d) }

// Drawable returns the drawable behind h.
func (m *Manager) Drawable(h handle.Handle) (*Drawable, bool) { return m.drawables.Get(h) }

// RemoveDrawable removes the drawable behind h.
func (m *Manager) RemoveDrawable(h handle.Handle) bool { return m.drawables.Remove(h) }

// NumDrawables returns the number of drawables.
func (m *Manager) NumDrawables() int { return m.drawables.Len() }

// EachDrawable calls fn for every drawable in slot order.
func (m *Manager) EachDrawable(fn func(handle.Handle, *Drawable)) { m.drawables.Each(fn) }

func packParams(params any) ([]byte, error) {
	data, err := shaderparams.Pack(params)
	if err != nil {
		return nil, fmt.Errorf("graphics: pack params: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("graphics: %T has no uniform fields", params)
	}
	return data, nil
}
