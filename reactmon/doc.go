// Reaction abuse monitor for chat guilds.
//
// A Monitor buffers "reaction added" and "reaction removed" events per guild and processes them on
// a fixed tick. Two things are detected:
//
//   - quick removes: a member adding a reaction and removing it again within the guild's minimum
//     reaction lifespan. These are reported to the guild's mod log.
//   - watched emoji: reactions using an emoji on the guild's watchlist, which can be logged,
//     removed (with the mute role applied), or removed with a timed mute.
//
// All chat platform access goes through the collaborator interfaces in this package (Platform,
// Authority, LogSink, ErrorReporter, ConfigStore). Buffers and active mutes live only in memory;
// losing them on restart only means a missed detection window.
//
// `cmd/warden` is a daemon built on this package.
package reactmon
