package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	// Prefix is the etcd key prefix for job locks.
	Prefix = "/odm-dispatcher/locks/"
	// SessionTTL bounds how long a crashed holder keeps a lock, in seconds.
	SessionTTL = 30
)

func NewEtcdClient(endpoints []string, timeout time.Duration) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
	})
}

// Etcd holds job-name locks across dispatcher replicas.
type Etcd struct {
	client *clientv3.Client
}

func NewEtcd(client *clientv3.Client) *Etcd {
	return &Etcd{client: client}
}

func (e *Etcd) Lock(ctx context.Context, name string) (Lock, error) {
	session, err := concurrency.NewSession(e.client, concurrency.WithTTL(SessionTTL))
	if err != nil {
		return nil, fmt.Errorf("etcd session for %s: %w", name, err)
	}

	mutex := concurrency.NewMutex(session, Prefix+name)
	if err := mutex.TryLock(ctx); err != nil {
		_ = session.Close()
		if errors.Is(err, concurrency.ErrLocked) {
			return nil, ErrNotAcquired
		}
		return nil, fmt.Errorf("try lock %s: %w", name, err)
	}
	return &etcdLock{mutex: mutex, session: session, name: name}, nil
}

type etcdLock struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
	name    string
}

func (l *etcdLock) Unlock(ctx context.Context) error {
	defer l.session.Close()
	if err := l.mutex.Unlock(ctx); err != nil {
		return fmt.Errorf("unlock %s: %w", l.name, err)
	}
	return nil
}
