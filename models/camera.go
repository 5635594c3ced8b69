package models

import "sync"

// CameraStore caches the latest camera state pushed by an upstream source.
// Reads return a copy, so a snapshot taken at the start of a query is never
// mutated by a concurrent update.
//
// CameraStore implements CameraProvider.
type CameraStore struct {
	mutex  sync.RWMutex
	camera Camera
}

func (s *CameraStore) SetCamera(v Camera) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.camera = v
}

func (s *CameraStore) Camera() Camera {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.camera
}
