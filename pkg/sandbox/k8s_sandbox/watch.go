package k8s_sandbox

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/watch"
)

// WatchEventType mirrors the cluster watch event kinds.
type WatchEventType string

const (
	WatchAdded    WatchEventType = "ADDED"
	WatchModified WatchEventType = "MODIFIED"
	WatchDeleted  WatchEventType = "DELETED"
	WatchBookmark WatchEventType = "BOOKMARK"
	WatchError    WatchEventType = "ERROR"
)

// WatchEvent is one observation from a watch stream. ResourceVersion is
// the version carried by the object, usable to resume after a disconnect.
type WatchEvent[T any] struct {
	Type            WatchEventType
	Object          *T
	ResourceVersion string
}

// WatchOptions configure a watch subscription.
type WatchOptions struct {
	LabelSelector string
	// ResourceVersion resumes the stream from a previous observation;
	// empty starts from the current state.
	ResourceVersion string
}

// WatchStream is a long-lived subscription to one resource collection.
// The stream does not reconnect: on server-side timeout or disconnect the
// events channel is closed and the caller re-establishes with the last
// observed resource version, applying its own backoff and de-duplication.
type WatchStream[T any] struct {
	events chan WatchEvent[T]
	source watch.Interface
}

// Events yields observations until the stream ends. The channel is closed
// when the server drops the connection or Stop is called.
func (w *WatchStream[T]) Events() <-chan WatchEvent[T] { return w.events }

// Stop terminates the subscription. Safe to call more than once.
func (w *WatchStream[T]) Stop() { w.source.Stop() }

// Watch opens a watch on the client's resource kind. Bookmarks are
// requested so the caller's resource version stays fresh across quiet
// periods.
func (c *ResourceClient[T]) Watch(ctx context.Context, namespace string, opts WatchOptions) (*WatchStream[T], error) {
	source, err := c.dyn.Resource(c.kind.GroupVersionResource).Namespace(namespace).Watch(ctx, metav1.ListOptions{
		LabelSelector:       opts.LabelSelector,
		ResourceVersion:     opts.ResourceVersion,
		AllowWatchBookmarks: true,
		Watch:               true,
	})
	if err != nil {
		return nil, c.mapError(err, "")
	}

	stream := &WatchStream[T]{
		events: make(chan WatchEvent[T]),
		source: source,
	}
	go stream.pump(ctx)
	return stream, nil
}

func (w *WatchStream[T]) pump(ctx context.Context) {
	defer close(w.events)
	defer w.source.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.source.ResultChan():
			if !ok {
				return
			}
			out, convertible := convertEvent[T](ev)
			if !convertible {
				continue
			}
			select {
			case w.events <- out:
			case <-ctx.Done():
				return
			}
		}
	}
}

func convertEvent[T any](ev watch.Event) (WatchEvent[T], bool) {
	out := WatchEvent[T]{}
	switch ev.Type {
	case watch.Added:
		out.Type = WatchAdded
	case watch.Modified:
		out.Type = WatchModified
	case watch.Deleted:
		out.Type = WatchDeleted
	case watch.Bookmark:
		out.Type = WatchBookmark
	case watch.Error:
		out.Type = WatchError
		return out, true
	default:
		return out, false
	}

	u, ok := ev.Object.(*unstructured.Unstructured)
	if !ok {
		return out, false
	}
	out.ResourceVersion = u.GetResourceVersion()
	if out.Type == WatchBookmark {
		return out, true
	}

	obj, err := fromUnstructured[T](u)
	if err != nil {
		return out, false
	}
	out.Object = obj
	return out, true
}
