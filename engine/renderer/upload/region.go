package upload

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

/**
 * @brief A CPU-writable, GPU-readable buffer holding a typed array of
 * fixed-size records. Records are overwritten in place by index and are
 * never read back by the GPU before the owning frame is submitted.
 *
 * Constant buffer regions pad every record to 256 bytes so each one can be
 * bound on its own.
 */
type Region[T any] struct {
	name             string
	buffer           metadata.Buffer
	recordSize       int
	elementSize      uint64
	capacity         uint32
	isConstantBuffer bool
}

// NewRegion allocates room for capacity records of T on the device.
func NewRegion[T any](device metadata.Device, name string, capacity uint32, isConstantBuffer bool) (*Region[T], error) {
	recordSize := metadata.RecordSize[T]()
	if recordSize <= 0 {
		return nil, fmt.Errorf("upload region %s: record type %T has no fixed size", name, *new(T))
	}
	if capacity == 0 {
		return nil, fmt.Errorf("upload region %s: capacity must be greater than zero", name)
	}

	elementSize := uint64(recordSize)
	if isConstantBuffer {
		elementSize = metadata.CalcConstantBufferByteSize(elementSize)
	}

	buffer, err := device.CreateUploadBuffer(name, elementSize*uint64(capacity))
	if err != nil {
		return nil, fmt.Errorf("upload region %s: %w", name, err)
	}

	return &Region[T]{
		name:             name,
		buffer:           buffer,
		recordSize:       recordSize,
		elementSize:      elementSize,
		capacity:         capacity,
		isConstantBuffer: isConstantBuffer,
	}, nil
}

// CopyData writes record at index. Indexes at or past the capacity are rejected.
func (r *Region[T]) CopyData(index uint32, record *T) error {
	if index >= r.capacity {
		return fmt.Errorf("upload region %s: index %d, capacity %d: %w", r.name, index, r.capacity, core.ErrCapacityExceeded)
	}
	offset := uint64(index) * r.elementSize
	dst := r.buffer.Bytes()[offset : offset+uint64(r.recordSize)]
	if _, err := binary.Encode(dst, binary.LittleEndian, record); err != nil {
		return fmt.Errorf("upload region %s: encoding record %d: %w", r.name, index, err)
	}
	return nil
}

// Read decodes the record currently stored at index.
func (r *Region[T]) Read(index uint32) (T, error) {
	var out T
	if index >= r.capacity {
		return out, fmt.Errorf("upload region %s: index %d, capacity %d: %w", r.name, index, r.capacity, core.ErrCapacityExceeded)
	}
	offset := uint64(index) * r.elementSize
	src := r.buffer.Bytes()[offset : offset+uint64(r.recordSize)]
	if _, err := binary.Decode(src, binary.LittleEndian, &out); err != nil {
		return out, fmt.Errorf("upload region %s: decoding record %d: %w", r.name, index, err)
	}
	return out, nil
}

// Address is the GPU address of the first record.
func (r *Region[T]) Address() metadata.GPUAddress {
	return r.buffer.Address()
}

// AddressOf is the GPU address of the record at index.
func (r *Region[T]) AddressOf(index uint32) metadata.GPUAddress {
	return r.buffer.Address() + metadata.GPUAddress(uint64(index)*r.elementSize)
}

// ElementSize is the distance in bytes between two consecutive records.
func (r *Region[T]) ElementSize() uint64 {
	return r.elementSize
}

// RecordSize is the packed size of one record, without padding.
func (r *Region[T]) RecordSize() uint32 {
	return uint32(r.recordSize)
}

func (r *Region[T]) Capacity() uint32 {
	return r.capacity
}

func (r *Region[T]) Name() string {
	return r.name
}

func (r *Region[T]) Buffer() metadata.Buffer {
	return r.buffer
}

func (r *Region[T]) Destroy() {
	if r.buffer != nil {
		r.buffer.Destroy()
		r.buffer = nil
	}
}
