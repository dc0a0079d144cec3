package devcore

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/hostgpu"
)

// Swapchain is a headless ring of presentable textures. Presentation runs
// on the graphics queue and only records which image was shown last.
type Swapchain struct {
	core   *Core
	create func(rhi.TextureDesc) (rhi.Texture, error)

	mu            sync.Mutex
	desc          rhi.SwapchainDesc
	images        []rhi.Texture
	current       int
	lastPresented rhi.Texture
}

// NewSwapchain builds a swapchain whose images come from create, so each
// backend allocates them with its own texture type.
func (c *Core) NewSwapchain(desc rhi.SwapchainDesc, create func(rhi.TextureDesc) (rhi.Texture, error)) (*Swapchain, error) {
	if desc.NumImages == 0 {
		desc.NumImages = 2
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		desc.Format = gputypes.TextureFormatBGRA8Unorm
	}
	sc := &Swapchain{core: c, create: create, current: -1}
	if err := sc.allocate(desc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *Swapchain) allocate(desc rhi.SwapchainDesc) error {
	if desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("%w: swapchain extent %dx%d", rhi.ErrInvalidDesc, desc.Width, desc.Height)
	}
	images := make([]rhi.Texture, desc.NumImages)
	for i := range images {
		tex, err := sc.create(rhi.TextureDesc{
			Label:  fmt.Sprintf("swapchain image %d", i),
			Extent: gputypes.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
			Format: desc.Format,
			Usage: rhi.TextureUsageColorAttachment | rhi.TextureUsageTransferDst |
				rhi.TextureUsageTransferSrc | rhi.TextureUsageSampled,
		})
		if err != nil {
			for _, t := range images[:i] {
				t.Destroy()
			}
			return err
		}
		images[i] = tex
	}
	for _, t := range sc.images {
		t.Destroy()
	}
	sc.desc = desc
	sc.images = images
	sc.current = -1
	sc.lastPresented = nil
	return nil
}

// Desc returns the current description.
func (sc *Swapchain) Desc() rhi.SwapchainDesc {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.desc
}

// Images returns the swapchain images in ring order.
func (sc *Swapchain) Images() []rhi.Texture {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]rhi.Texture(nil), sc.images...)
}

// AcquireNextTexture advances the ring. signal, if not nil, is signaled
// once every earlier graphics submission has finished.
func (sc *Swapchain) AcquireNextTexture(signal rhi.Semaphore) (rhi.Texture, error) {
	if err := sc.core.Alive(); err != nil {
		return nil, err
	}
	var b hostgpu.Batch
	if signal != nil {
		s, err := hostSemaphore(signal)
		if err != nil {
			return nil, err
		}
		b.Signals = []*hostgpu.Semaphore{s}
	}
	sc.mu.Lock()
	sc.current = (sc.current + 1) % len(sc.images)
	tex := sc.images[sc.current]
	sc.mu.Unlock()
	if !sc.core.HostQueue(rhi.QueueGraphics).q.Submit(b) {
		return nil, rhi.ErrDeviceDestroyed
	}
	return tex, nil
}

// CurrentTexture returns the acquired image, or nil before the first
// acquire.
func (sc *Swapchain) CurrentTexture() rhi.Texture {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.current < 0 {
		return nil
	}
	return sc.images[sc.current]
}

// Present queues presentation of the current image behind waits.
func (sc *Swapchain) Present(waits []rhi.Semaphore) error {
	if err := sc.core.Alive(); err != nil {
		return err
	}
	tex := sc.CurrentTexture()
	if tex == nil {
		return fmt.Errorf("%w: present before acquire", rhi.ErrInvalidDesc)
	}
	hw := make([]*hostgpu.Semaphore, 0, len(waits))
	for _, w := range waits {
		s, err := hostSemaphore(w)
		if err != nil {
			return err
		}
		hw = append(hw, s)
	}
	ok := sc.core.HostQueue(rhi.QueueGraphics).run(hw, func() {
		sc.mu.Lock()
		sc.lastPresented = tex
		sc.mu.Unlock()
	})
	if !ok {
		return rhi.ErrDeviceDestroyed
	}
	return nil
}

// LastPresented returns the image most recently shown.
func (sc *Swapchain) LastPresented() rhi.Texture {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.lastPresented
}

// Resize waits for the graphics queue and reallocates every image.
func (sc *Swapchain) Resize(width, height uint32) error {
	if err := sc.core.HostQueue(rhi.QueueGraphics).WaitIdle(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	desc := sc.desc
	desc.Width, desc.Height = width, height
	return sc.allocate(desc)
}

// Destroy releases the images.
func (sc *Swapchain) Destroy() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for _, t := range sc.images {
		t.Destroy()
	}
	sc.images = nil
}
