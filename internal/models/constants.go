package models

const (
	EventReviewAdded        = "review_added"
	EventReviewRemoved      = "review_removed"
	EventBookingCreated     = "booking_created"
	EventBookingCancelled   = "booking_cancelled"
	EventBookingRescheduled = "booking_rescheduled"
)

const (
	// FeaturedRoomsLimit сколько комнат отдает /featured
	FeaturedRoomsLimit = 6

	// HomeReviewsLimit сколько последних отзывов показывается на главной
	HomeReviewsLimit = 15

	DefaultMinPrice = 0
	DefaultMaxPrice = 1000000

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000
)
