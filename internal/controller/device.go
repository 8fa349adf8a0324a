// Package controller holds the request entry points. Every exported method of
// its types is intercepted by weblog when called through the HTTP handlers.
package controller

import (
	"context"
	"fmt"

	"soho/internal/device"
	"soho/internal/weblog"
)

// DeviceTypeName is the declaring type name the interceptor sees.
const DeviceTypeName = "controller.DeviceController"

// DeviceController serves device operations.
type DeviceController struct {
	Repo device.Repository
}

// FindByID returns the device with the given id.
func (c *DeviceController) FindByID(ctx context.Context, id int64) (*device.Device, error) {
	return c.Repo.Get(ctx, id)
}

// List returns every device, ordered by id.
func (c *DeviceController) List(ctx context.Context) ([]device.Device, error) {
	return c.Repo.List(ctx)
}

// Create validates and stores a new device.
func (c *DeviceController) Create(ctx context.Context, d device.Device) (*device.Device, error) {
	d.ID = 0
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return c.Repo.Save(ctx, d)
}

// Delete removes a device.
func (c *DeviceController) Delete(ctx context.Context, id int64) error {
	return c.Repo.Delete(ctx, id)
}

// AveragePower returns the device's accumulated energy divided over samples
// readings. A zero sample count is an arithmetic error.
func (c *DeviceController) AveragePower(ctx context.Context, id int64, samples int) (float64, error) {
	d, err := c.Repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if samples == 0 {
		return 0, weblog.DivideByZero("average power")
	}
	if samples < 0 {
		return 0, fmt.Errorf("%w: samples must be positive", device.ErrInvalid)
	}
	return d.EnergyWh / float64(samples), nil
}
