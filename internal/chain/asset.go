// Copyright 2026 The corevault Authors
// This file is part of the corevault library.
//
// The corevault library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The corevault library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the corevault library. If not, see <http://www.gnu.org/licenses/>.

package chain

// Asset is the value carried by a transaction output: tokens and
// receipts are tracked independently and never implicitly converted.
type Asset struct {
	Tokens   uint64 `json:"tokens"`
	Receipts uint64 `json:"receipts"`
}

// Add returns the element-wise sum of a and b.
func (a Asset) Add(b Asset) Asset {
	return Asset{Tokens: a.Tokens + b.Tokens, Receipts: a.Receipts + b.Receipts}
}

// IsZero reports whether both components are zero.
func (a Asset) IsZero() bool {
	return a.Tokens == 0 && a.Receipts == 0
}

// Covers reports whether a has at least as much of every component as req.
func (a Asset) Covers(req Asset) bool {
	return a.Tokens >= req.Tokens && a.Receipts >= req.Receipts
}
