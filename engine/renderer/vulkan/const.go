package vulkan

import "time"

// Buffer addresses are the buffer id shifted by this amount plus a byte offset.
const addressShift = 40

/**
 * @brief Max number of descriptor sets handed out by the device pool. Dynamic
 * uniform sets are cached per buffer and range, table sets per heap entry.
 */
const VULKAN_MAX_DESCRIPTOR_SETS uint32 = 4096

/**
 * @brief Max number of submissions the queue tracks before the oldest must retire.
 */
const VULKAN_MAX_PENDING_SUBMISSIONS uint32 = 64

// Timeline waits poll the oldest pending submission with this timeout so a
// cancelled context is noticed.
const fenceWaitSlice = 10 * time.Millisecond

// Size of the push constant block carrying the texture index.
const texturePushConstantSize uint32 = 4
