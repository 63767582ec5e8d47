package session

import "sync"

const subscriberBuffer = 16

// Store holds the canonical session state for one principal. Transitions are
// serialized under the store mutex; subscribers observe committed states in
// order. A subscriber that falls more than subscriberBuffer states behind
// misses intermediate transitions but can always read Current.
type Store struct {
	mutex            sync.Mutex
	state            State
	subscribers      map[int]chan State
	nextSubscriberID int
}

// NewStore constructs a store in the Loading state.
func NewStore() *Store {
	return &Store{
		state:       Loading(),
		subscribers: make(map[int]chan State),
	}
}

// Current returns the committed state.
func (store *Store) Current() State {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.state
}

// Set commits a new state and notifies subscribers.
func (store *Store) Set(state State) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.state = state
	for _, subscriber := range store.subscribers {
		select {
		case subscriber <- state:
		default:
		}
	}
}

// Reset returns the store to the Loading state.
func (store *Store) Reset() {
	store.Set(Loading())
}

// Subscribe registers a listener for committed states. The returned cancel
// function must be called to release the subscription.
func (store *Store) Subscribe() (<-chan State, func()) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	subscriberID := store.nextSubscriberID
	store.nextSubscriberID++
	channel := make(chan State, subscriberBuffer)
	store.subscribers[subscriberID] = channel

	cancel := func() {
		store.mutex.Lock()
		defer store.mutex.Unlock()
		if _, stillRegistered := store.subscribers[subscriberID]; stillRegistered {
			delete(store.subscribers, subscriberID)
			close(channel)
		}
	}
	return channel, cancel
}
