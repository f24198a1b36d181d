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

// OpType is the discriminant identifying what computation a Call node performs.
// It is a closed set: passes dispatch on it with an explicit default for operators
// they don't know about.
type OpType int

const (
	OpInvalid OpType = iota
	OpAdd
	OpMul
	OpReLU
	OpSoftmax
	OpBiasAdd
	OpConv2D
	OpDense
	OpMaxPool2D
	OpBatchNorm
	OpConcatenate
	OpReshape
	OpFlatten

	// opLast is a marker for the number of operator types, for iterating.
	opLast
)

// NumOpTypes is the number of defined operator types.
const NumOpTypes = int(opLast)

var opTypeNames = [...]string{
	OpInvalid:     "Invalid",
	OpAdd:         "Add",
	OpMul:         "Mul",
	OpReLU:        "ReLU",
	OpSoftmax:     "Softmax",
	OpBiasAdd:     "BiasAdd",
	OpConv2D:      "Conv2D",
	OpDense:       "Dense",
	OpMaxPool2D:   "MaxPool2D",
	OpBatchNorm:   "BatchNorm",
	OpConcatenate: "Concatenate",
	OpReshape:     "Reshape",
	OpFlatten:     "Flatten",
}

// String implements fmt.Stringer.
func (op OpType) String() string {
	if op <= OpInvalid || op >= opLast {
		return fmt.Sprintf("OpType(%d)", op)
	}
	return opTypeNames[op]
}
