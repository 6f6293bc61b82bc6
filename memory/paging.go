package memory

import (
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/minikern/log"
)

// PageEntry is a page directory or page table entry.
type PageEntry uint32

const (
	// FlagPresent is set when the entry maps something.
	FlagPresent PageEntry = 1 << iota

	// FlagRW allows writes from user mode.
	FlagRW

	// FlagUser allows user mode access.
	FlagUser

	FlagWriteThrough
	FlagCacheDisable
	FlagAccessed
	FlagDirty

	// FlagPageSize marks a directory entry that maps a 4 MiB page directly.
	FlagPageSize

	// FlagGlobal keeps the translation cached across flushes.
	FlagGlobal
)

const entryAddrMask = 0xFFFFF000

func (e PageEntry) HasFlags(flags PageEntry) bool {
	return e&flags == flags
}

func (e *PageEntry) SetFlags(flags PageEntry) {
	*e |= flags
}

func (e *PageEntry) ClearFlags(flags PageEntry) {
	*e &^= flags
}

func (e PageEntry) Address() uint32 {
	return uint32(e) & entryAddrMask
}

func (e *PageEntry) SetAddress(addr uint32) {
	*e = PageEntry(uint32(*e)&^entryAddrMask | addr&entryAddrMask)
}

// PageTable is a second level table of 1024 small pages.
type PageTable [1024]PageEntry

type Privilege int

const (
	Supervisor Privilege = iota
	UserMode
)

var ErrMisaligned = errors.New("address not aligned to a large page")

// PageFault describes a failed translation.
type PageFault struct {
	Addr    uint32
	Write   bool
	User    bool
	Present bool
}

func (f *PageFault) Error() string {
	return fmt.Sprintf("page fault at %#08x (write=%t user=%t present=%t)", f.Addr, f.Write, f.User, f.Present)
}

// MMU owns the single system-wide page directory.
type MMU struct {
	L hclog.Logger

	mu sync.Mutex

	phys   *Physical
	dir    [1024]PageEntry
	tables map[uint32]*PageTable
	tlb    *TLB
}

// NewMMU builds the static mappings: the display page for the kernel, the
// kernel as one global large page and an empty table for the user display
// mapping.
func NewMMU(phys *Physical) *MMU {
	m := &MMU{
		L:      log.L.Named("mmu"),
		phys:   phys,
		tables: make(map[uint32]*PageTable),
		tlb:    NewTLB(),
	}

	kernelTable := new(PageTable)
	vga := &kernelTable[VideoPhys/PageSize]
	vga.SetFlags(FlagPresent | FlagRW)
	vga.SetAddress(VideoPhys)

	m.installTable(0, kernelTableAddr, kernelTable, FlagPresent|FlagRW)

	kern := &m.dir[KernelBase>>22]
	kern.SetFlags(FlagPresent | FlagRW | FlagPageSize | FlagGlobal)
	kern.SetAddress(KernelBase)

	m.installTable(UserDisplay>>22, userDisplayTableAddr, new(PageTable), FlagPresent|FlagRW|FlagUser)

	return m
}

func (m *MMU) installTable(idx int, addr uint32, table *PageTable, flags PageEntry) {
	m.tables[addr] = table

	pde := &m.dir[idx]
	pde.SetFlags(flags)
	pde.SetAddress(addr)
}

// Physical returns the RAM behind the MMU.
func (m *MMU) Physical() *Physical {
	return m.phys
}

func (m *MMU) TLB() *TLB {
	return m.tlb
}

// Flush invalidates the translation cache.
func (m *MMU) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tlb.Flush()
}

// BindLarge points the directory entry for virt at the 4 MiB frame phys
// with user read/write access, then flushes the translation cache.
func (m *MMU) BindLarge(virt, phys uint32) error {
	if virt&^largeMask != 0 || phys&^largeMask != 0 {
		return errors.Wrapf(ErrMisaligned, "virt=%#x phys=%#x", virt, phys)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pde := &m.dir[virt>>22]
	*pde = 0
	pde.SetFlags(FlagPresent | FlagRW | FlagUser | FlagPageSize)
	pde.SetAddress(phys)

	m.tlb.Flush()

	m.L.Trace("bind-large", "virt", hclog.Hex(int(virt)), "phys", hclog.Hex(int(phys)))

	return nil
}

// UnbindLarge removes the large mapping for virt.
func (m *MMU) UnbindLarge(virt uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dir[virt>>22].ClearFlags(FlagPresent)
	m.tlb.Flush()
}

// LargeBinding returns the frame bound at virt, if any.
func (m *MMU) LargeBinding(virt uint32) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pde := m.dir[virt>>22]
	if !pde.HasFlags(FlagPresent | FlagPageSize) {
		return 0, false
	}

	return pde.Address() & largeMask, true
}

// ExposeDisplay maps the display buffer at UserDisplay for user code and
// returns that address.
func (m *MMU) ExposeDisplay() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	pte := &m.tables[userDisplayTableAddr][0]
	pte.SetFlags(FlagPresent | FlagRW | FlagUser)
	pte.SetAddress(VideoPhys)

	m.tlb.Flush()

	return UserDisplay
}

// HideDisplay removes the user display mapping.
func (m *MMU) HideDisplay() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[userDisplayTableAddr][0].ClearFlags(FlagPresent)
	m.tlb.Flush()
}

// DisplayExposed reports whether the user display mapping is live.
func (m *MMU) DisplayExposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tables[userDisplayTableAddr][0].HasFlags(FlagPresent)
}

// Translate resolves virt to a physical address for an access at the given
// privilege.
func (m *MMU) Translate(virt uint32, priv Privilege, write bool) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vpn := virt / PageSize

	tr, ok := m.tlb.lookup(vpn)
	if !ok {
		var err error

		tr, err = m.walk(virt)
		if err != nil {
			return 0, &PageFault{Addr: virt, Write: write, User: priv == UserMode}
		}

		m.tlb.insert(vpn, tr)
	}

	if priv == UserMode {
		if !tr.flags.HasFlags(FlagUser) || (write && !tr.flags.HasFlags(FlagRW)) {
			return 0, &PageFault{Addr: virt, Write: write, User: true, Present: true}
		}
	}

	return tr.frame | virt%PageSize, nil
}

var errNotPresent = errors.New("not present")

func (m *MMU) walk(virt uint32) (translation, error) {
	pde := m.dir[virt>>22]
	if !pde.HasFlags(FlagPresent) {
		return translation{}, errNotPresent
	}

	if pde.HasFlags(FlagPageSize) {
		base := pde.Address() & largeMask
		return translation{
			frame:  base | (virt&^largeMask)&entryAddrMask,
			flags:  pde,
			global: pde.HasFlags(FlagGlobal),
		}, nil
	}

	table, ok := m.tables[pde.Address()]
	if !ok {
		return translation{}, errNotPresent
	}

	pte := table[(virt>>12)&0x3FF]
	if !pte.HasFlags(FlagPresent) {
		return translation{}, errNotPresent
	}

	// user and write permission need both levels to agree
	flags := pte &^ (FlagUser | FlagRW)
	flags |= pte & pde & (FlagUser | FlagRW)

	return translation{
		frame:  pte.Address(),
		flags:  flags,
		global: pte.HasFlags(FlagGlobal),
	}, nil
}
