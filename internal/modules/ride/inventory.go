package ride

// Reserve takes n seats from r. It must only run inside Store.InRide.
func Reserve(r *Ride, n int) error {
	if n < 1 || n > r.AvailableSeats {
		return ErrInsufficientSeats
	}
	r.AvailableSeats -= n
	return nil
}

// Release returns n seats to r, never exceeding TotalSeats.
func Release(r *Ride, n int) {
	if n < 1 {
		return
	}
	r.AvailableSeats += n
	if r.AvailableSeats > r.TotalSeats {
		r.AvailableSeats = r.TotalSeats
	}
}
