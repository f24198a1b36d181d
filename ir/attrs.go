/*
 *	Copyright 2024 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package ir

import "fmt"

// Attributes holds the static (non-tensor) parameters of a Call node. Each OpType
// that takes attributes defines its own struct; operators without attributes use nil.
//
// Layout-valued attributes are stored as their string spec (e.g. "NCHW") to keep the
// ir package independent of the layouts package, which consumes it.
type Attributes interface {
	fmt.Stringer
}

// ConvAttrs are the attributes of an OpConv2D node.
//
// The zero value of DataLayout, KernelLayout and OutLayout means, respectively,
// "NCHW", "OIHW" and "same as data layout".
type ConvAttrs struct {
	Channels   int
	KernelSize [2]int
	Strides    [2]int
	Padding    [2]int

	DataLayout   string
	KernelLayout string
	OutLayout    string
}

// EffectiveStrides returns the configured strides, defaulting to 1x1.
func (a ConvAttrs) EffectiveStrides() [2]int {
	if a.Strides == ([2]int{}) {
		return [2]int{1, 1}
	}
	return a.Strides
}

// EffectiveDataLayout returns the configured data layout spec, defaulting to NCHW.
func (a ConvAttrs) EffectiveDataLayout() string {
	if a.DataLayout == "" {
		return "NCHW"
	}
	return a.DataLayout
}

// EffectiveKernelLayout returns the configured kernel layout spec, defaulting to OIHW.
func (a ConvAttrs) EffectiveKernelLayout() string {
	if a.KernelLayout == "" {
		return "OIHW"
	}
	return a.KernelLayout
}

// String implements fmt.Stringer.
func (a ConvAttrs) String() string {
	return fmt.Sprintf("channels=%d, kernel_size=%v, strides=%v, padding=%v, data_layout=%s",
		a.Channels, a.KernelSize, a.EffectiveStrides(), a.Padding, a.EffectiveDataLayout())
}

// PoolAttrs are the attributes of an OpMaxPool2D node. A zero Layout means
// "follow the input layout".
type PoolAttrs struct {
	PoolSize [2]int
	Strides  [2]int
	Padding  [2]int
	Layout   string
}

// EffectiveStrides returns the configured strides, defaulting to the pool size.
func (a PoolAttrs) EffectiveStrides() [2]int {
	if a.Strides == ([2]int{}) {
		return a.PoolSize
	}
	return a.Strides
}

// String implements fmt.Stringer.
func (a PoolAttrs) String() string {
	return fmt.Sprintf("pool_size=%v, strides=%v, padding=%v", a.PoolSize, a.EffectiveStrides(), a.Padding)
}

// DenseAttrs are the attributes of an OpDense node.
type DenseAttrs struct {
	Units int
}

// String implements fmt.Stringer.
func (a DenseAttrs) String() string { return fmt.Sprintf("units=%d", a.Units) }

// ConcatAttrs are the attributes of an OpConcatenate node.
type ConcatAttrs struct {
	Axis int
}

// String implements fmt.Stringer.
func (a ConcatAttrs) String() string { return fmt.Sprintf("axis=%d", a.Axis) }

// BatchNormAttrs are the attributes of an OpBatchNorm node. Axis is the channels
// axis being normalized.
type BatchNormAttrs struct {
	Axis    int
	Epsilon float64
}

// String implements fmt.Stringer.
func (a BatchNormAttrs) String() string {
	return fmt.Sprintf("axis=%d, epsilon=%g", a.Axis, a.Epsilon)
}

// ReshapeAttrs are the attributes of an OpReshape node. NewShape may contain one -1,
// resolved by shape inference from the input size.
type ReshapeAttrs struct {
	NewShape []int
}

// String implements fmt.Stringer.
func (a ReshapeAttrs) String() string { return fmt.Sprintf("new_shape=%v", a.NewShape) }
