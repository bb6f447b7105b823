// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package hcisocket

import (
	"errors"
	"fmt"

	blecap "github.com/ZaparooProject/go-blecap"
	"golang.org/x/sys/unix"
)

const (
	// HCIDEVDOWN: _IOW('H', 202, int)
	hciDevDown = 0x400448CA

	// readPollMillis bounds how long a read waits before the loop
	// re-checks for Close.
	readPollMillis = 100
)

// Open detaches hci<index> from the kernel Bluetooth stack and binds a user
// channel socket to it.
func Open(index int) (*Controller, error) {
	if index < 0 || index > 0xFFFF {
		return nil, fmt.Errorf("%w: hci index %d", blecap.ErrInvalidParameter, index)
	}
	name := fmt.Sprintf("hci%d", index)

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, blecap.NewTransportError("socket", name, err, blecap.ErrorTypePermanent)
	}

	// The user channel can only be bound to a device that is down.
	if err := unix.IoctlSetInt(fd, hciDevDown, index); err != nil && !errors.Is(err, unix.EALREADY) {
		_ = unix.Close(fd)
		return nil, blecap.NewTransportError("device down", name, err, errorType(err))
	}

	sa := &unix.SockaddrHCI{Dev: uint16(index), Channel: unix.HCI_CHANNEL_USER} //nolint:gosec // range checked above
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, blecap.NewTransportError("bind user channel", name, err, errorType(err))
	}

	blecap.Debugf("%s: user channel bound", name)
	return newController(&fdConn{fd: fd}, name), nil
}

// errorType marks a busy device as worth retrying; the kernel may still be
// releasing it.
func errorType(err error) blecap.ErrorType {
	if errors.Is(err, unix.EBUSY) {
		return blecap.ErrorTypeTransient
	}
	return blecap.ErrorTypePermanent
}

type fdConn struct {
	fd int
}

func (c *fdConn) Read(b []byte) (int, error) {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}} //nolint:gosec // fd fits int32
	n, err := unix.Poll(fds, readPollMillis)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err //nolint:wrapcheck // wrapped by the read loop
	}
	if n == 0 {
		return 0, nil
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && fds[0].Revents&unix.POLLIN == 0 {
		return 0, unix.ENODEV
	}

	n, err = unix.Read(c.fd, b)
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return 0, nil
		}
		return 0, err //nolint:wrapcheck // wrapped by the read loop
	}
	return n, nil
}

func (c *fdConn) Write(b []byte) (int, error) {
	for {
		n, err := unix.Write(c.fd, b)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err //nolint:wrapcheck // wrapped by SendCommand
	}
}

func (c *fdConn) Close() error {
	return unix.Close(c.fd) //nolint:wrapcheck // wrapped by Controller.Close
}
