package state

import (
	"DexLedger/internal/book"
	"DexLedger/internal/fpmath"
)

// OpenOrdersMetadata is per-product bookkeeping over a trader's resting
// orders: quantity in the book on each side and the head of the product's
// order list inside the shared node arena.
type OpenOrdersMetadata struct {
	AskQtyInBook  fpmath.Fractional
	BidQtyInBook  fpmath.Fractional
	HeadIndex     int
	NumOpenOrders uint64
}

// OpenOrdersNode is one arena slot. A free node has a zero ID and its Next
// threads the free list.
type OpenOrdersNode struct {
	ID       book.OrderID
	ClientID uint64
	Prev     int
	Next     int
}

// OpenOrders is a trader's resting-order ledger: a fixed node arena shared by
// all products, with per-product doubly linked lists and a free list over the
// unused nodes. Node zero is the reserved sentinel.
type OpenOrders struct {
	FreeListHead    int
	TotalOpenOrders uint64
	Products        [MaxProducts]OpenOrdersMetadata
	Orders          [MaxOpenOrders]OpenOrdersNode
}

// Initialize resets every product list and points the free list past the
// sentinel. Until a removal seeds the free list proper, allocation walks the
// arena densely.
func (o *OpenOrders) Initialize() {
	o.FreeListHead = 1
	o.TotalOpenOrders = 0
	for i := range o.Products {
		o.Products[i] = OpenOrdersMetadata{}
	}
	for i := range o.Orders {
		o.Orders[i] = OpenOrdersNode{}
	}
}

// HasOpenOrder walks the product's list looking for the order id.
func (o *OpenOrders) HasOpenOrder(index int, id book.OrderID) bool {
	for i := o.Products[index].HeadIndex; i != Sentinel; i = o.Orders[i].Next {
		if o.Orders[i].ID == id {
			return true
		}
	}
	return false
}

// NextIndex returns the arena slot the next added order will occupy.
func (o *OpenOrders) NextIndex() int { return o.FreeListHead }

// AddOpenOrder places the order id at the head of the product's list, taking
// the node at the front of the free list.
func (o *OpenOrders) AddOpenOrder(index int, id book.OrderID, clientID uint64) error {
	oldHead := o.Products[index].HeadIndex
	free := o.FreeListHead
	nextFree := o.Orders[free].Next

	o.Orders[free].ID = id
	o.Orders[free].ClientID = clientID
	o.Orders[free].Next = oldHead
	o.Orders[free].Prev = Sentinel
	o.Products[index].HeadIndex = free
	if oldHead != Sentinel {
		o.Orders[oldHead].Prev = free
	}

	if nextFree == Sentinel {
		// Densely packed arena: the next free node is simply the next slot.
		if free+1 >= MaxOpenOrders {
			return ErrTooManyOpenOrders
		}
		o.FreeListHead = free + 1
	} else {
		o.FreeListHead = nextFree
	}
	return nil
}

// removeNode unlinks slot i from the product's list and pushes it onto the
// front of the free list.
func (o *OpenOrders) removeNode(index, i int) {
	free := o.FreeListHead
	next := o.Orders[i].Next
	prev := o.Orders[i].Prev
	if prev == Sentinel {
		o.Products[index].HeadIndex = next
	}
	o.Orders[i] = OpenOrdersNode{Next: free, Prev: Sentinel}
	o.Orders[free].Prev = i
	o.FreeListHead = i
	if next != Sentinel {
		o.Orders[next].Prev = prev
	}
	if prev != Sentinel {
		o.Orders[prev].Next = next
	}
}

// RemoveOpenOrderByIndex frees slot i after verifying it still holds id.
func (o *OpenOrders) RemoveOpenOrderByIndex(index, i int, id book.OrderID) error {
	if i <= Sentinel || i >= MaxOpenOrders || o.Orders[i].ID != id {
		return ErrInvalidOrderID
	}
	o.removeNode(index, i)
	return nil
}

// RemoveOpenOrder scans the product's list for id and frees its node.
func (o *OpenOrders) RemoveOpenOrder(index int, id book.OrderID) error {
	for i := o.Products[index].HeadIndex; i != Sentinel; i = o.Orders[i].Next {
		if o.Orders[i].ID == id {
			o.removeNode(index, i)
			return nil
		}
	}
	return ErrOpenOrderNotFound
}

// Clear frees the product's entire list.
func (o *OpenOrders) Clear(index int) {
	for i := o.Products[index].HeadIndex; i != Sentinel; {
		next := o.Orders[i].Next
		o.removeNode(index, i)
		i = next
	}
}
