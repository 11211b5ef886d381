// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devblok/cubes/core"
	"github.com/devblok/cubes/core/renderer"
	"github.com/devblok/cubes/gfx"
	"github.com/devblok/cubes/gfx/vkr"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

var frameCounter int64

var (
	configPath   = flag.String("config", "", "TOML configuration file")
	envPath      = flag.String("env", "", "Dotenv file with configuration overrides")
	assetsPath   = flag.String("assets", "", "Kar archive with compiled shaders, bundled shaders when empty")
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
)

func newWindow(cfg core.DeviceConfiguration) (*sdl.Window, error) {
	return sdl.CreateWindow("Cubes",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.ScreenWidth),
		int32(cfg.ScreenHeight),
		sdl.WINDOW_VULKAN)
}

func main() {
	flag.Parse()

	configuration, err := core.LoadConfiguration(*configPath, *envPath)
	if err != nil {
		log.WithError(err).Fatal("configuration")
	}
	if *assetsPath != "" {
		configuration.Assets = *assetsPath
	}
	if *debug {
		configuration.Device.Debug = true
		log.SetLevel(log.DebugLevel)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.WithError(err).Fatal("cpu profile")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.WithError(err).Fatal("cpu profile")
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			log.WithError(err).Fatal("trace")
		}
		if err := trace.Start(f); err != nil {
			log.WithError(err).Fatal("trace")
		}
		defer trace.Stop()
	}

	if err := run(configuration); err != nil {
		// deferred profiles are flushed before exiting
		pprof.StopCPUProfile()
		trace.Stop()
		log.WithError(err).Fatal("cubes stopped")
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.WithError(err).Fatal("memory profile")
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.WithError(err).Fatal("memory profile")
		}
	}
}

func run(configuration core.Configuration) error {
	assets, closeAssets, err := core.OpenAssets(configuration.Assets)
	if err != nil {
		return err
	}
	defer closeAssets()

	shaders, err := core.LoadShaders(assets, core.CubeVertexShader, core.CubeFragmentShader)
	if err != nil {
		return err
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return errors.Wrap(err, "sdl")
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return errors.Wrap(err, "sdl")
	}
	defer sdl.VulkanUnloadLibrary()

	window, err := newWindow(configuration.Device)
	if err != nil {
		return errors.Wrap(err, "sdl window")
	}
	defer window.Destroy()

	instance, err := vkr.NewInstance(vkr.DefaultApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), vkr.InstanceConfiguration{
		DebugMode:  configuration.Device.Debug,
		Extensions: window.VulkanGetInstanceExtensions(),
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := window.VulkanCreateSurface(instance.Inner())
	if err != nil {
		return errors.Wrap(err, "sdl surface")
	}
	instance.SetSurface(surface)

	device, err := vkr.NewDevice(instance, vkr.Configuration{
		SwapchainSize: configuration.Device.SwapchainSize,
		Extensions:    configuration.Device.DeviceExtensions,
		Extent: gfx.Extent2D{
			Width:  configuration.Device.ScreenWidth,
			Height: configuration.Device.ScreenHeight,
		},
		DescriptorSets: configuration.Renderer.Workers,
		VertexShader:   shaders[core.VertexShaderType],
		FragmentShader: shaders[core.FragmentShaderType],
	}, log.WithField("component", "device"))
	if err != nil {
		return err
	}
	defer device.Release()

	cubes, err := renderer.New(device, configuration.Renderer, log.WithField("component", "renderer"))
	if err != nil {
		return err
	}
	defer cubes.Destroy()

	timeService := core.NewTime(configuration.Time)
	defer timeService.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		programSync sync.WaitGroup
		frameErr    error
	)

	/* Frame counter loop */
	programSync.Add(1)
	go func() {
		defer programSync.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				currentCount := atomic.SwapInt64(&frameCounter, 0)
				fmt.Printf("\r\033[2KFrame count: %d\tCGO calls: %d", currentCount, runtime.NumCgoCall())
			}
		}
	}()

	/* Renderer loop */
	programSync.Add(1)
	go func() {
		defer programSync.Done()
		var clock core.Clock
		for {
			select {
			case <-ctx.Done():
				return
			case <-timeService.FpsTicker().C:
				if err := cubes.RenderFrame(clock.Tick()); err != nil {
					frameErr = err
					cancel()
					return
				}
				atomic.AddInt64(&frameCounter, 1)
			}
		}
	}()

	/* Event loop */
EventLoop:
	for {
		select {
		case <-ctx.Done():
			break EventLoop
		case <-timeService.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						cancel()
					}
				case *sdl.QuitEvent:
					cancel()
				}
			}
		}
	}

	programSync.Wait()
	fmt.Println()
	log.WithField("frames", cubes.Frames()).Info("event loop exited")
	return frameErr
}
